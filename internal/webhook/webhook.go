// Package webhook processes inbound connector notifications: verify the
// source signature, map the event into the canonical vocabulary and fold the
// new status into the trackers through the same patch path API calls use.
// Stale or replayed events that would move an intent backward are dropped.
package webhook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/merchant"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// Outcome reports what an inbound event did.
type Outcome struct {
	Event       types.WebhookEvent `json:"event"`
	ReferenceID string             `json:"reference_id"`
	// Applied is false for unsupported events and stale replays.
	Applied bool `json:"applied"`
}

// Processor handles inbound webhooks for all registered connectors.
type Processor struct {
	stores    *storage.Selector
	registry  *connector.Registry
	merchants merchant.Repo
	log       zerolog.Logger
}

func NewProcessor(stores *storage.Selector, registry *connector.Registry, merchants merchant.Repo, log zerolog.Logger) *Processor {
	return &Processor{
		stores:    stores,
		registry:  registry,
		merchants: merchants,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

// Process verifies and applies one inbound event. Verification failures are
// API errors so the caller can answer 400; a verified but unsupported event
// is acknowledged without effect.
func (p *Processor) Process(ctx context.Context, merchantID, connectorName string, body []byte, headers map[string]string) (*Outcome, error) {
	profile, err := p.merchants.Get(merchantID)
	if err != nil {
		return nil, apierror.NotFound("merchant", merchantID)
	}
	cfg, ok := profile.ConnectorConfig(connectorName)
	if !ok {
		return nil, apierror.InvalidConnector(connectorName)
	}
	resolved, err := p.registry.Resolve(connectorName, cfg)
	if err != nil {
		return nil, apierror.InvalidConnector(connectorName)
	}
	source, ok := resolved.Connector.(connector.WebhookConnector)
	if !ok {
		return nil, apierror.InvalidRequest("connector does not deliver webhooks")
	}

	if err := source.VerifySource(body, headers, []byte(cfg.WebhookSecret)); err != nil {
		p.log.Warn().Err(err).Str("connector", connectorName).Msg("webhook signature rejected")
		return nil, apierror.InvalidRequest("webhook signature verification failed")
	}

	event, err := source.WebhookEventType(body)
	if err != nil {
		return nil, apierror.InvalidRequest("unparseable webhook payload")
	}
	if event == types.EventUnsupported {
		return &Outcome{Event: event}, nil
	}
	reference, err := source.WebhookReferenceID(body)
	if err != nil {
		return nil, apierror.InvalidRequest("webhook payload carries no reference")
	}

	outcome := &Outcome{Event: event, ReferenceID: reference}
	store := p.stores.ForMerchant(merchantID)

	if status, ok := event.RefundStatus(); ok {
		applied, err := p.applyRefundEvent(ctx, store, merchantID, reference, status)
		if err != nil {
			return nil, err
		}
		outcome.Applied = applied
		return outcome, nil
	}

	status, ok := event.AttemptStatus()
	if !ok {
		return outcome, nil
	}
	applied, err := p.applyPaymentEvent(ctx, store, merchantID, reference, status)
	if err != nil {
		return nil, err
	}
	outcome.Applied = applied
	return outcome, nil
}

func (p *Processor) applyPaymentEvent(ctx context.Context, store storage.Store, merchantID, paymentID string, status types.AttemptStatus) (bool, error) {
	intent, err := store.FindIntent(ctx, merchantID, paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apierror.NotFound("payment", paymentID)
		}
		return false, apierror.Internal("failed to load payment intent")
	}
	if intent.ActiveAttempt == "" {
		// An event for an intent that never went out is a processor bug on
		// their side; acknowledged without effect.
		return false, nil
	}
	// The intent transition is validated first; a stale event must not touch
	// the attempt either.
	intentStatus := status.IntentStatus()
	patch := storage.IntentPatch{Status: &intentStatus}
	// A settlement event is the only source of the captured amount when the
	// call that started the payment never saw the outcome.
	if status == types.AttemptCharged && intent.AmountCaptured == 0 {
		patch.AmountCaptured = &intent.Amount
	}
	if _, err := store.UpdateIntent(ctx, merchantID, paymentID, patch); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			// Replayed or out-of-order event against a terminal intent.
			p.log.Debug().Str("payment_id", paymentID).Str("status", string(intentStatus)).Msg("dropping stale webhook event")
			return false, nil
		}
		return false, apierror.Internal("failed to persist intent update")
	}
	if _, err := store.UpdateAttempt(ctx, merchantID, paymentID, intent.ActiveAttempt, storage.AttemptPatch{Status: &status}); err != nil {
		return false, apierror.Internal("failed to persist attempt update")
	}
	return true, nil
}

func (p *Processor) applyRefundEvent(ctx context.Context, store storage.Store, merchantID, refundID string, status types.RefundStatus) (bool, error) {
	refund, err := store.FindRefund(ctx, merchantID, refundID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apierror.NotFound("refund", refundID)
		}
		return false, apierror.Internal("failed to load refund")
	}
	if refund.Status != types.RefundPending && refund.Status != status {
		p.log.Debug().Str("refund_id", refundID).Msg("dropping stale refund event")
		return false, nil
	}
	if _, err := store.UpdateRefund(ctx, merchantID, refundID, storage.RefundPatch{Status: &status}); err != nil {
		return false, apierror.Internal("failed to persist refund update")
	}
	return true, nil
}
