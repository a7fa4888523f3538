package pipeline

import (
	"context"
	"errors"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// getOrCreateCustomer resolves the payer reference for an intent. An
// explicit id must exist; without one a new customer is created only when
// the request carried any identifying data.
func (s *Service) getOrCreateCustomer(ctx context.Context, store storage.Store, merchantID, customerID, name, email string) (string, *apierror.APIError) {
	if customerID != "" {
		if _, err := store.FindCustomer(ctx, merchantID, customerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", apierror.NotFound("customer", customerID)
			}
			return "", apierror.Internal("failed to load customer")
		}
		return customerID, nil
	}
	if name == "" && email == "" {
		return "", nil
	}
	customer := types.NewCustomer(merchantID, name, email)
	if err := store.InsertCustomer(ctx, customer); err != nil {
		return "", apierror.Internal("failed to persist customer")
	}
	return customer.CustomerID, nil
}
