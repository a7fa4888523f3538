package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payflow-engine/payflow/internal/types"
)

// NewPgxPool builds the durable-store connection pool.
func NewPgxPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %v", ErrDatabase, err)
	}
	config.MaxConns = 30
	config.MinConns = 10
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrDatabase, err)
	}
	return pool, nil
}

// PostgresStore is the durable relational Store. Under the dual-write scheme
// it is only mutated by the drainer; merchants on the direct scheme write it
// straight from the pipeline.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const intentColumns = `payment_id, merchant_id, profile_id, status, amount, amount_captured,
	currency, customer_id, capture_method, authentication_type, description, client_secret,
	active_attempt_id, return_url, created_at, modified_at`

func scanIntent(row pgx.Row) (*types.PaymentIntent, error) {
	var intent types.PaymentIntent
	err := row.Scan(
		&intent.PaymentID, &intent.MerchantID, &intent.ProfileID, &intent.Status,
		&intent.Amount, &intent.AmountCaptured, &intent.Currency, &intent.CustomerID,
		&intent.CaptureMethod, &intent.AuthType, &intent.Description, &intent.ClientSecret,
		&intent.ActiveAttempt, &intent.ReturnURL, &intent.CreatedAt, &intent.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan intent: %v", ErrDatabase, err)
	}
	return &intent, nil
}

func (p *PostgresStore) InsertIntent(ctx context.Context, intent *types.PaymentIntent) error {
	query := `INSERT INTO payment_intents (` + intentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (merchant_id, payment_id) DO NOTHING`
	tag, err := p.db.Exec(ctx, query,
		intent.PaymentID, intent.MerchantID, intent.ProfileID, intent.Status,
		intent.Amount, intent.AmountCaptured, intent.Currency, intent.CustomerID,
		intent.CaptureMethod, intent.AuthType, intent.Description, intent.ClientSecret,
		intent.ActiveAttempt, intent.ReturnURL, intent.CreatedAt, intent.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert intent: %v", ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateValue
	}
	return nil
}

func (p *PostgresStore) UpsertIntent(ctx context.Context, intent *types.PaymentIntent) error {
	query := `INSERT INTO payment_intents (` + intentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (merchant_id, payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_captured = EXCLUDED.amount_captured,
			customer_id = EXCLUDED.customer_id,
			active_attempt_id = EXCLUDED.active_attempt_id,
			modified_at = EXCLUDED.modified_at`
	_, err := p.db.Exec(ctx, query,
		intent.PaymentID, intent.MerchantID, intent.ProfileID, intent.Status,
		intent.Amount, intent.AmountCaptured, intent.Currency, intent.CustomerID,
		intent.CaptureMethod, intent.AuthType, intent.Description, intent.ClientSecret,
		intent.ActiveAttempt, intent.ReturnURL, intent.CreatedAt, intent.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert intent: %v", ErrDatabase, err)
	}
	return nil
}

func (p *PostgresStore) UpdateIntent(ctx context.Context, merchantID, paymentID string, patch IntentPatch) (*types.PaymentIntent, error) {
	intent, err := p.FindIntent(ctx, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := applyIntentPatch(intent, patch); err != nil {
		return nil, err
	}
	if err := p.UpsertIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

func (p *PostgresStore) FindIntent(ctx context.Context, merchantID, paymentID string) (*types.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE merchant_id = $1 AND payment_id = $2`
	return scanIntent(p.db.QueryRow(ctx, query, merchantID, paymentID))
}

const attemptColumns = `attempt_id, payment_id, merchant_id, connector, status, amount,
	currency, authentication_type, capture_method, payment_method,
	connector_transaction_id, error_code, error_message, error_reason, created_at, modified_at`

func scanAttempt(row pgx.Row) (*types.PaymentAttempt, error) {
	var attempt types.PaymentAttempt
	err := row.Scan(
		&attempt.AttemptID, &attempt.PaymentID, &attempt.MerchantID, &attempt.Connector,
		&attempt.Status, &attempt.Amount, &attempt.Currency, &attempt.AuthType,
		&attempt.CaptureMethod, &attempt.PaymentMethod, &attempt.ConnectorTxnID,
		&attempt.ErrorCode, &attempt.ErrorMessage, &attempt.ErrorReason,
		&attempt.CreatedAt, &attempt.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan attempt: %v", ErrDatabase, err)
	}
	return &attempt, nil
}

func (p *PostgresStore) InsertAttempt(ctx context.Context, attempt *types.PaymentAttempt) error {
	query := `INSERT INTO payment_attempts (` + attemptColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (merchant_id, payment_id, attempt_id) DO NOTHING`
	tag, err := p.db.Exec(ctx, query,
		attempt.AttemptID, attempt.PaymentID, attempt.MerchantID, attempt.Connector,
		attempt.Status, attempt.Amount, attempt.Currency, attempt.AuthType,
		attempt.CaptureMethod, attempt.PaymentMethod, attempt.ConnectorTxnID,
		attempt.ErrorCode, attempt.ErrorMessage, attempt.ErrorReason,
		attempt.CreatedAt, attempt.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert attempt: %v", ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateValue
	}
	return nil
}

func (p *PostgresStore) UpsertAttempt(ctx context.Context, attempt *types.PaymentAttempt) error {
	query := `INSERT INTO payment_attempts (` + attemptColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (merchant_id, payment_id, attempt_id) DO UPDATE SET
			connector = EXCLUDED.connector,
			status = EXCLUDED.status,
			payment_method = EXCLUDED.payment_method,
			connector_transaction_id = EXCLUDED.connector_transaction_id,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			error_reason = EXCLUDED.error_reason,
			modified_at = EXCLUDED.modified_at`
	_, err := p.db.Exec(ctx, query,
		attempt.AttemptID, attempt.PaymentID, attempt.MerchantID, attempt.Connector,
		attempt.Status, attempt.Amount, attempt.Currency, attempt.AuthType,
		attempt.CaptureMethod, attempt.PaymentMethod, attempt.ConnectorTxnID,
		attempt.ErrorCode, attempt.ErrorMessage, attempt.ErrorReason,
		attempt.CreatedAt, attempt.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert attempt: %v", ErrDatabase, err)
	}
	return nil
}

func (p *PostgresStore) UpdateAttempt(ctx context.Context, merchantID, paymentID, attemptID string, patch AttemptPatch) (*types.PaymentAttempt, error) {
	attempt, err := p.FindAttempt(ctx, merchantID, paymentID, attemptID)
	if err != nil {
		return nil, err
	}
	applyAttemptPatch(attempt, patch)
	if err := p.UpsertAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (p *PostgresStore) FindAttempt(ctx context.Context, merchantID, paymentID, attemptID string) (*types.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts
		WHERE merchant_id = $1 AND payment_id = $2 AND attempt_id = $3`
	return scanAttempt(p.db.QueryRow(ctx, query, merchantID, paymentID, attemptID))
}

const refundColumns = `refund_id, payment_id, attempt_id, merchant_id, connector,
	connector_refund_id, connector_transaction_id, amount, currency, status,
	error_code, error_message, created_at, modified_at`

func scanRefund(row pgx.Row) (*types.Refund, error) {
	var refund types.Refund
	err := row.Scan(
		&refund.RefundID, &refund.PaymentID, &refund.AttemptID, &refund.MerchantID,
		&refund.Connector, &refund.ConnectorRefund, &refund.ConnectorTxnID,
		&refund.Amount, &refund.Currency, &refund.Status,
		&refund.ErrorCode, &refund.ErrorMessage, &refund.CreatedAt, &refund.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan refund: %v", ErrDatabase, err)
	}
	return &refund, nil
}

func (p *PostgresStore) InsertRefund(ctx context.Context, refund *types.Refund) error {
	query := `INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (merchant_id, refund_id) DO NOTHING`
	tag, err := p.db.Exec(ctx, query,
		refund.RefundID, refund.PaymentID, refund.AttemptID, refund.MerchantID,
		refund.Connector, refund.ConnectorRefund, refund.ConnectorTxnID,
		refund.Amount, refund.Currency, refund.Status,
		refund.ErrorCode, refund.ErrorMessage, refund.CreatedAt, refund.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert refund: %v", ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateValue
	}
	return nil
}

func (p *PostgresStore) UpsertRefund(ctx context.Context, refund *types.Refund) error {
	query := `INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (merchant_id, refund_id) DO UPDATE SET
			connector_refund_id = EXCLUDED.connector_refund_id,
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			modified_at = EXCLUDED.modified_at`
	_, err := p.db.Exec(ctx, query,
		refund.RefundID, refund.PaymentID, refund.AttemptID, refund.MerchantID,
		refund.Connector, refund.ConnectorRefund, refund.ConnectorTxnID,
		refund.Amount, refund.Currency, refund.Status,
		refund.ErrorCode, refund.ErrorMessage, refund.CreatedAt, refund.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert refund: %v", ErrDatabase, err)
	}
	return nil
}

func (p *PostgresStore) UpdateRefund(ctx context.Context, merchantID, refundID string, patch RefundPatch) (*types.Refund, error) {
	refund, err := p.FindRefund(ctx, merchantID, refundID)
	if err != nil {
		return nil, err
	}
	applyRefundPatch(refund, patch)
	if err := p.UpsertRefund(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

func (p *PostgresStore) FindRefund(ctx context.Context, merchantID, refundID string) (*types.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE merchant_id = $1 AND refund_id = $2`
	return scanRefund(p.db.QueryRow(ctx, query, merchantID, refundID))
}

func (p *PostgresStore) InsertCustomer(ctx context.Context, customer *types.Customer) error {
	query := `INSERT INTO customers (customer_id, merchant_id, name, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (merchant_id, customer_id) DO NOTHING`
	tag, err := p.db.Exec(ctx, query,
		customer.CustomerID, customer.MerchantID, customer.Name, customer.Email,
		customer.Phone, customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert customer: %v", ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateValue
	}
	return nil
}

func (p *PostgresStore) UpsertCustomer(ctx context.Context, customer *types.Customer) error {
	query := `INSERT INTO customers (customer_id, merchant_id, name, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (merchant_id, customer_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone`
	_, err := p.db.Exec(ctx, query,
		customer.CustomerID, customer.MerchantID, customer.Name, customer.Email,
		customer.Phone, customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert customer: %v", ErrDatabase, err)
	}
	return nil
}

func (p *PostgresStore) FindCustomer(ctx context.Context, merchantID, customerID string) (*types.Customer, error) {
	query := `SELECT customer_id, merchant_id, name, email, phone, created_at
		FROM customers WHERE merchant_id = $1 AND customer_id = $2`
	var customer types.Customer
	err := p.db.QueryRow(ctx, query, merchantID, customerID).Scan(
		&customer.CustomerID, &customer.MerchantID, &customer.Name,
		&customer.Email, &customer.Phone, &customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan customer: %v", ErrDatabase, err)
	}
	return &customer, nil
}
