package storage

import (
	"context"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/types"
)

// Drainer folds queued change entries into the durable store. One worker per
// partition keeps per-merchant write order; the fold itself is a
// latest-record upsert, so replays after a crash converge to the KV state.
type Drainer struct {
	stream     Stream
	durable    Durable
	partitions int
	popTimeout time.Duration
	maxRetries int
	log        zerolog.Logger

	waitGroup  sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewDrainer(stream Stream, durable Durable, partitions int, log zerolog.Logger) *Drainer {
	return &Drainer{
		stream:     stream,
		durable:    durable,
		partitions: partitions,
		popTimeout: 2 * time.Second,
		maxRetries: 8,
		log:        log.With().Str("component", "drainer").Logger(),
	}
}

func (d *Drainer) Start() {
	d.log.Info().Int("partitions", d.partitions).Msg("starting drainer workers")

	var ctx context.Context
	ctx, d.cancelFunc = context.WithCancel(context.Background())

	for partition := 0; partition < d.partitions; partition++ {
		d.waitGroup.Add(1)
		go d.worker(ctx, partition)
	}
}

func (d *Drainer) Stop() {
	d.log.Info().Msg("shutting down drainer workers")
	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	d.waitGroup.Wait()
	d.log.Info().Msg("all drainer workers stopped")
}

func (d *Drainer) worker(ctx context.Context, partition int) {
	defer d.waitGroup.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			entry, err := d.stream.Pop(ctx, partition, d.popTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.log.Error().Err(err).Int("partition", partition).Msg("failed to pop change entry")
				time.Sleep(500 * time.Millisecond)
				continue
			}
			if entry == nil {
				continue
			}
			if err := d.fold(ctx, entry); err != nil {
				d.log.Error().Err(err).
					Str("table", string(entry.Table)).
					Str("key", entry.Key).
					Msg("change entry could not be folded, escalating for manual reconciliation")
			}
		}
	}
}

// fold applies one entry with exponential backoff. These writes may carry
// money movement that already happened, so giving up is the last resort.
func (d *Drainer) fold(ctx context.Context, entry *ChangeEntry) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err = d.apply(ctx, entry); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
	return err
}

// Drain applies queued entries until every partition reads empty once. Used
// by tests and by the drainer process on shutdown to flush the lag.
func (d *Drainer) Drain(ctx context.Context) error {
	for partition := 0; partition < d.partitions; partition++ {
		for {
			entry, err := d.stream.Pop(ctx, partition, time.Millisecond)
			if err != nil {
				return err
			}
			if entry == nil {
				break
			}
			if err := d.apply(ctx, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Drainer) apply(ctx context.Context, entry *ChangeEntry) error {
	switch entry.Table {
	case TableIntents:
		var intent types.PaymentIntent
		if err := json.Unmarshal(entry.Record, &intent); err != nil {
			return err
		}
		return d.durable.UpsertIntent(ctx, &intent)
	case TableAttempts:
		var attempt types.PaymentAttempt
		if err := json.Unmarshal(entry.Record, &attempt); err != nil {
			return err
		}
		return d.durable.UpsertAttempt(ctx, &attempt)
	case TableRefunds:
		var refund types.Refund
		if err := json.Unmarshal(entry.Record, &refund); err != nil {
			return err
		}
		return d.durable.UpsertRefund(ctx, &refund)
	case TableCustomers:
		var customer types.Customer
		if err := json.Unmarshal(entry.Record, &customer); err != nil {
			return err
		}
		return d.durable.UpsertCustomer(ctx, &customer)
	}
	d.log.Warn().Str("table", string(entry.Table)).Msg("skipping change entry for unknown table")
	return nil
}
