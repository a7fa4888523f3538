// Package reconcile schedules background status syncs for attempts whose
// connector outcome is unknown (timeouts, processing states). Tasks sit in a
// delayed queue until due, then a worker replays a payment sync through the
// pipeline. Re-running a task for an already-terminal intent is a no-op.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	delayedQueueKey = "reconcile:delayed"
	readyQueueKey   = "reconcile:ready"
)

// Task identifies one attempt to re-sync.
type Task struct {
	MerchantID string    `json:"merchant_id"`
	PaymentID  string    `json:"payment_id"`
	AttemptID  string    `json:"attempt_id"`
	Tries      int       `json:"tries"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Scheduler enqueues a task to run no earlier than the given time.
type Scheduler interface {
	ScheduleSync(ctx context.Context, task Task, at time.Time) error
}

// SyncFunc executes one task; the pipeline's payment-sync operation is
// plugged in here.
type SyncFunc func(ctx context.Context, task Task) error

// RedisScheduler stores delayed tasks in a sorted set scored by due time.
type RedisScheduler struct {
	client *redis.Client
}

func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	return &RedisScheduler{client: client}
}

func (s *RedisScheduler) ScheduleSync(ctx context.Context, task Task, at time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("[reconcile] failed to marshal task: %w", err)
	}
	_, err = s.client.ZAdd(ctx, delayedQueueKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: string(payload),
	}).Result()
	return err
}

// Requeuer periodically moves due tasks from the delayed set to the ready
// queue with a single pipelined push-and-trim.
type Requeuer struct {
	client   *redis.Client
	interval time.Duration
	stopChan chan struct{}
	log      zerolog.Logger
}

func NewRequeuer(client *redis.Client, log zerolog.Logger) *Requeuer {
	return &Requeuer{
		client:   client,
		interval: 5 * time.Second,
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "reconcile").Logger(),
	}
}

func (r *Requeuer) Start() {
	r.log.Info().Msg("starting reconcile requeuer")
	ticker := time.NewTicker(r.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.moveDueTasks()
			case <-r.stopChan:
				ticker.Stop()
				r.log.Info().Msg("reconcile requeuer stopped")
				return
			}
		}
	}()
}

func (r *Requeuer) Stop() {
	close(r.stopChan)
}

func (r *Requeuer) moveDueTasks() {
	ctx := context.Background()
	maxScore := fmt.Sprintf("%d", time.Now().Unix())

	items, err := r.client.ZRangeByScore(ctx, delayedQueueKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   maxScore,
		Count: 100,
	}).Result()
	if err != nil || len(items) == 0 {
		return
	}

	r.log.Debug().Int("count", len(items)).Msg("moving due reconcile tasks")
	pipe := r.client.Pipeline()
	for _, item := range items {
		pipe.LPush(ctx, readyQueueKey, item)
	}
	pipe.ZRemRangeByScore(ctx, delayedQueueKey, "0", maxScore)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error().Err(err).Msg("failed to requeue due tasks")
	}
}

// Worker drains the ready queue with a pool of goroutines.
type Worker struct {
	numWorkers int
	client     *redis.Client
	syncFunc   SyncFunc
	log        zerolog.Logger

	waitGroup  sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewWorker(numWorkers int, client *redis.Client, syncFunc SyncFunc, log zerolog.Logger) *Worker {
	return &Worker{
		numWorkers: numWorkers,
		client:     client,
		syncFunc:   syncFunc,
		log:        log.With().Str("component", "reconcile").Logger(),
	}
}

func (w *Worker) Start() {
	w.log.Info().Int("workers", w.numWorkers).Msg("starting reconcile workers")

	var ctx context.Context
	ctx, w.cancelFunc = context.WithCancel(context.Background())

	for i := 1; i <= w.numWorkers; i++ {
		w.waitGroup.Add(1)
		go w.worker(ctx, i)
	}
}

func (w *Worker) Stop() {
	w.log.Info().Msg("shutting down reconcile workers")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.waitGroup.Wait()
	w.log.Info().Msg("all reconcile workers stopped")
}

func (w *Worker) worker(ctx context.Context, id int) {
	defer w.waitGroup.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			result, err := w.client.BRPop(ctx, 2*time.Second, readyQueueKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				w.log.Error().Err(err).Int("worker", id).Msg("failed to pop reconcile task")
				continue
			}
			if len(result) < 2 {
				continue
			}
			var task Task
			if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
				w.log.Error().Err(err).Msg("dropping malformed reconcile task")
				continue
			}
			if err := w.syncFunc(ctx, task); err != nil {
				w.log.Warn().Err(err).
					Str("payment_id", task.PaymentID).
					Int("tries", task.Tries).
					Msg("reconcile sync failed")
			}
		}
	}
}

// MemoryScheduler collects scheduled tasks for tests.
type MemoryScheduler struct {
	mu    sync.Mutex
	tasks []Task
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

func (s *MemoryScheduler) ScheduleSync(_ context.Context, task Task, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

// Scheduled returns a snapshot of everything scheduled so far.
func (s *MemoryScheduler) Scheduled() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}
