package storage

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	json "github.com/json-iterator/go"
)

// Table names a record family inside a change entry.
type Table string

const (
	TableIntents   Table = "payment_intents"
	TableAttempts  Table = "payment_attempts"
	TableRefunds   Table = "refunds"
	TableCustomers Table = "customers"
)

// ChangeEntry is one logical write queued for the drainer. Record always
// holds the full latest state of the row, so folding is an idempotent
// upsert and replays converge.
type ChangeEntry struct {
	Kind       string          `json:"kind"` // insert | update
	Table      Table           `json:"table"`
	MerchantID string          `json:"merchant_id"`
	Key        string          `json:"key"`
	Record     json.RawMessage `json:"record"`
	QueuedAt   time.Time       `json:"queued_at"`
}

// Stream is the ordered, per-partition replication log between the KV hot
// path and the drainer. Entries for one merchant always land in the same
// partition, which preserves per-key write order.
type Stream interface {
	Append(ctx context.Context, partition int, entry ChangeEntry) error
	// Pop blocks up to timeout for the next entry; (nil, nil) means the
	// partition was empty for the whole window.
	Pop(ctx context.Context, partition int, timeout time.Duration) (*ChangeEntry, error)
}

// Partition maps a merchant id onto one of n stream partitions.
func Partition(merchantID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(merchantID))
	return int(h.Sum32() % uint32(n))
}

// MemoryStream is an in-process Stream used by tests.
type MemoryStream struct {
	mu         sync.Mutex
	partitions map[int][]ChangeEntry
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{partitions: make(map[int][]ChangeEntry)}
}

func (s *MemoryStream) Append(_ context.Context, partition int, entry ChangeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[partition] = append(s.partitions[partition], entry)
	return nil
}

func (s *MemoryStream) Pop(_ context.Context, partition int, _ time.Duration) (*ChangeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.partitions[partition]
	if len(queue) == 0 {
		return nil, nil
	}
	entry := queue[0]
	s.partitions[partition] = queue[1:]
	return &entry, nil
}

// Len reports the queued entry count across partitions.
func (s *MemoryStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, queue := range s.partitions {
		total += len(queue)
	}
	return total
}
