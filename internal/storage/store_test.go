package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/types"
)

func newTestIntent() *types.PaymentIntent {
	intent := types.NewPaymentIntent("merchant_1", "profile_1", 1000, "USD", types.CaptureAutomatic)
	intent.PaymentID = "pay_test_1"
	return intent
}

func TestInsertIntentIdempotence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	intent := newTestIntent()

	if err := store.InsertIntent(ctx, intent); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.InsertIntent(ctx, intent)
	if !errors.Is(err, ErrDuplicateValue) {
		t.Fatalf("second insert: got %v, want ErrDuplicateValue", err)
	}

	found, err := store.FindIntent(ctx, intent.MerchantID, intent.PaymentID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.PaymentID != intent.PaymentID {
		t.Errorf("found wrong record: %s", found.PaymentID)
	}
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.FindIntent(context.Background(), "m", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateIntentRejectsBackwardTransition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	intent := newTestIntent()
	intent.Status = types.IntentSucceeded
	if err := store.InsertIntent(ctx, intent); err != nil {
		t.Fatalf("insert: %v", err)
	}

	processing := types.IntentProcessing
	_, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, IntentPatch{Status: &processing})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}

	// Idempotent terminal update is a no-op, not an error.
	succeeded := types.IntentSucceeded
	if _, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, IntentPatch{Status: &succeeded}); err != nil {
		t.Fatalf("terminal self-transition: %v", err)
	}
}

func TestConnectorTxnIDNeverOverwritten(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	intent := newTestIntent()
	attempt := types.NewPaymentAttempt(intent, "alphapay", types.AuthNoThreeDS)
	if err := store.InsertAttempt(ctx, attempt); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}

	first := "tx_1"
	if _, err := store.UpdateAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID, AttemptPatch{ConnectorTxnID: &first}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	second := "tx_2"
	updated, err := store.UpdateAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID, AttemptPatch{ConnectorTxnID: &second})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.ConnectorTxnID != "tx_1" {
		t.Errorf("connector txn id was overwritten: %s", updated.ConnectorTxnID)
	}
}

func TestPartitionIsStable(t *testing.T) {
	a := Partition("merchant_1", 4)
	for i := 0; i < 10; i++ {
		if got := Partition("merchant_1", 4); got != a {
			t.Fatalf("partition not stable: %d vs %d", got, a)
		}
	}
	if a < 0 || a >= 4 {
		t.Fatalf("partition out of range: %d", a)
	}
}

func TestDrainerConvergence(t *testing.T) {
	ctx := context.Background()
	hot := NewMemoryStore()
	durable := NewMemoryStore()
	stream := NewMemoryStream()
	drainer := NewDrainer(stream, durable, 2, zerolog.Nop())

	enqueue := func(table Table, merchantID, key string, record any) {
		data, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		entry := ChangeEntry{
			Kind: "update", Table: table, MerchantID: merchantID,
			Key: key, Record: data, QueuedAt: time.Now().UTC(),
		}
		if err := stream.Append(ctx, Partition(merchantID, 2), entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Hot-path writes: create, then two status updates, replicated in order.
	intent := newTestIntent()
	if err := hot.InsertIntent(ctx, intent); err != nil {
		t.Fatalf("insert: %v", err)
	}
	enqueue(TableIntents, intent.MerchantID, intent.PaymentID, intent)

	for _, status := range []types.IntentStatus{types.IntentRequiresConfirmation, types.IntentProcessing, types.IntentSucceeded} {
		status := status
		updated, err := hot.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, IntentPatch{Status: &status})
		if err != nil {
			t.Fatalf("update to %s: %v", status, err)
		}
		enqueue(TableIntents, intent.MerchantID, intent.PaymentID, updated)
	}

	attempt := types.NewPaymentAttempt(intent, "alphapay", types.AuthNoThreeDS)
	if err := hot.InsertAttempt(ctx, attempt); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}
	enqueue(TableAttempts, attempt.MerchantID, attemptKey(attempt.MerchantID, attempt.PaymentID, attempt.AttemptID), attempt)

	if err := drainer.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stream.Len() != 0 {
		t.Fatalf("stream not empty after drain: %d entries", stream.Len())
	}

	hotIntent, err := hot.FindIntent(ctx, intent.MerchantID, intent.PaymentID)
	if err != nil {
		t.Fatalf("find hot: %v", err)
	}
	durableIntent, err := durable.FindIntent(ctx, intent.MerchantID, intent.PaymentID)
	if err != nil {
		t.Fatalf("find durable: %v", err)
	}
	if durableIntent.Status != hotIntent.Status {
		t.Errorf("stores diverged: durable %s, hot %s", durableIntent.Status, hotIntent.Status)
	}
	if durableIntent.Status != types.IntentSucceeded {
		t.Errorf("durable status = %s, want succeeded", durableIntent.Status)
	}
	if _, err := durable.FindAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID); err != nil {
		t.Errorf("attempt did not reach durable store: %v", err)
	}

	// Replaying the same entries is a no-op on the converged state.
	data, _ := json.Marshal(hotIntent)
	replay := ChangeEntry{Kind: "update", Table: TableIntents, MerchantID: intent.MerchantID, Key: intent.PaymentID, Record: data}
	_ = stream.Append(ctx, Partition(intent.MerchantID, 2), replay)
	if err := drainer.Drain(ctx); err != nil {
		t.Fatalf("replay drain: %v", err)
	}
	again, _ := durable.FindIntent(ctx, intent.MerchantID, intent.PaymentID)
	if again.Status != types.IntentSucceeded {
		t.Errorf("replay changed state: %s", again.Status)
	}
}

func TestSelectorScheme(t *testing.T) {
	kv := NewMemoryStore()
	direct := NewMemoryStore()
	selector := NewSelector(kv, direct, false, []string{"merchant_kv"})

	if selector.SchemeFor("merchant_kv") != SchemeKV {
		t.Error("merchant_kv should be on the kv scheme")
	}
	if selector.SchemeFor("merchant_other") != SchemeDirect {
		t.Error("unlisted merchant should be on the direct scheme")
	}
	if selector.ForMerchant("merchant_kv") != Store(kv) {
		t.Error("ForMerchant returned wrong store for kv merchant")
	}
	if selector.ForMerchant("merchant_other") != Store(direct) {
		t.Error("ForMerchant returned wrong store for direct merchant")
	}
}
