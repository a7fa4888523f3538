package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/payflow-engine/payflow/internal/types"
)

// NewRedisClient builds the shared client with pool settings sized for the
// request hot path.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})
}

// RedisStream is the replication log on Redis lists, one list per partition.
type RedisStream struct {
	client *redis.Client
}

func NewRedisStream(client *redis.Client) *RedisStream {
	return &RedisStream{client: client}
}

func streamKey(partition int) string {
	return fmt.Sprintf("drainer:queue:%d", partition)
}

func (s *RedisStream) Append(ctx context.Context, partition int, entry ChangeEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal change entry: %v", ErrKV, err)
	}
	if _, err := s.client.LPush(ctx, streamKey(partition), data).Result(); err != nil {
		return fmt.Errorf("%w: append: %v", ErrKV, err)
	}
	return nil
}

func (s *RedisStream) Pop(ctx context.Context, partition int, timeout time.Duration) (*ChangeEntry, error) {
	result, err := s.client.BRPop(ctx, timeout, streamKey(partition)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: pop: %v", ErrKV, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("%w: unexpected BRPop result: %v", ErrKV, result)
	}
	var entry ChangeEntry
	if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
		return nil, fmt.Errorf("%w: unmarshal change entry: %v", ErrKV, err)
	}
	return &entry, nil
}

// RedisStore is the KV hot path of record. Creates are guarded by SET NX so
// a concurrent duplicate insert loses with ErrDuplicateValue, and every
// successful write appends the latest record to the change stream for the
// drainer.
type RedisStore struct {
	client     *redis.Client
	stream     Stream
	partitions int
	ttl        time.Duration
}

func NewRedisStore(client *redis.Client, stream Stream, partitions int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		stream:     stream,
		partitions: partitions,
		ttl:        ttl,
	}
}

func (r *RedisStore) insert(ctx context.Context, key string, table Table, merchantID string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrKV, table, err)
	}
	created, err := r.client.SetNX(ctx, key, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrKV, table, err)
	}
	if !created {
		return ErrDuplicateValue
	}
	return r.replicate(ctx, "insert", table, merchantID, key, data)
}

func (r *RedisStore) find(ctx context.Context, key string, out any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: find: %v", ErrKV, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrKV, err)
	}
	return nil
}

func (r *RedisStore) write(ctx context.Context, key string, table Table, merchantID string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrKV, table, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrKV, table, err)
	}
	return r.replicate(ctx, "update", table, merchantID, key, data)
}

// replicate appends the write to the drainer stream. The primary KV write
// already succeeded, so a failure here is reported as ErrKV for the caller
// to escalate, not rolled back.
func (r *RedisStore) replicate(ctx context.Context, kind string, table Table, merchantID, key string, record []byte) error {
	entry := ChangeEntry{
		Kind:       kind,
		Table:      table,
		MerchantID: merchantID,
		Key:        key,
		Record:     record,
		QueuedAt:   time.Now().UTC(),
	}
	return r.stream.Append(ctx, Partition(merchantID, r.partitions), entry)
}

func redisIntentKey(merchantID, paymentID string) string {
	return fmt.Sprintf("pi:%s:%s", merchantID, paymentID)
}

func redisAttemptKey(merchantID, paymentID, attemptID string) string {
	return fmt.Sprintf("pa:%s:%s:%s", merchantID, paymentID, attemptID)
}

func redisRefundKey(merchantID, refundID string) string {
	return fmt.Sprintf("re:%s:%s", merchantID, refundID)
}

func redisCustomerKey(merchantID, customerID string) string {
	return fmt.Sprintf("cu:%s:%s", merchantID, customerID)
}

func (r *RedisStore) InsertIntent(ctx context.Context, intent *types.PaymentIntent) error {
	return r.insert(ctx, redisIntentKey(intent.MerchantID, intent.PaymentID), TableIntents, intent.MerchantID, intent)
}

func (r *RedisStore) UpdateIntent(ctx context.Context, merchantID, paymentID string, patch IntentPatch) (*types.PaymentIntent, error) {
	key := redisIntentKey(merchantID, paymentID)
	var intent types.PaymentIntent
	if err := r.find(ctx, key, &intent); err != nil {
		return nil, err
	}
	if err := applyIntentPatch(&intent, patch); err != nil {
		return nil, err
	}
	if err := r.write(ctx, key, TableIntents, merchantID, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *RedisStore) FindIntent(ctx context.Context, merchantID, paymentID string) (*types.PaymentIntent, error) {
	var intent types.PaymentIntent
	if err := r.find(ctx, redisIntentKey(merchantID, paymentID), &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *RedisStore) InsertAttempt(ctx context.Context, attempt *types.PaymentAttempt) error {
	return r.insert(ctx, redisAttemptKey(attempt.MerchantID, attempt.PaymentID, attempt.AttemptID), TableAttempts, attempt.MerchantID, attempt)
}

func (r *RedisStore) UpdateAttempt(ctx context.Context, merchantID, paymentID, attemptID string, patch AttemptPatch) (*types.PaymentAttempt, error) {
	key := redisAttemptKey(merchantID, paymentID, attemptID)
	var attempt types.PaymentAttempt
	if err := r.find(ctx, key, &attempt); err != nil {
		return nil, err
	}
	applyAttemptPatch(&attempt, patch)
	if err := r.write(ctx, key, TableAttempts, merchantID, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *RedisStore) FindAttempt(ctx context.Context, merchantID, paymentID, attemptID string) (*types.PaymentAttempt, error) {
	var attempt types.PaymentAttempt
	if err := r.find(ctx, redisAttemptKey(merchantID, paymentID, attemptID), &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *RedisStore) InsertRefund(ctx context.Context, refund *types.Refund) error {
	return r.insert(ctx, redisRefundKey(refund.MerchantID, refund.RefundID), TableRefunds, refund.MerchantID, refund)
}

func (r *RedisStore) UpdateRefund(ctx context.Context, merchantID, refundID string, patch RefundPatch) (*types.Refund, error) {
	key := redisRefundKey(merchantID, refundID)
	var refund types.Refund
	if err := r.find(ctx, key, &refund); err != nil {
		return nil, err
	}
	applyRefundPatch(&refund, patch)
	if err := r.write(ctx, key, TableRefunds, merchantID, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *RedisStore) FindRefund(ctx context.Context, merchantID, refundID string) (*types.Refund, error) {
	var refund types.Refund
	if err := r.find(ctx, redisRefundKey(merchantID, refundID), &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *RedisStore) InsertCustomer(ctx context.Context, customer *types.Customer) error {
	return r.insert(ctx, redisCustomerKey(customer.MerchantID, customer.CustomerID), TableCustomers, customer.MerchantID, customer)
}

func (r *RedisStore) FindCustomer(ctx context.Context, merchantID, customerID string) (*types.Customer, error) {
	var customer types.Customer
	if err := r.find(ctx, redisCustomerKey(merchantID, customerID), &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}
