package recorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flowgate-hq/flowgate/pkg/audit"
	"flowgate-hq/flowgate/pkg/audit/storage"
	"flowgate-hq/flowgate/pkg/redact"
)

func newRecord(requestID string) *audit.Record {
	now := time.Now()
	return &audit.Record{
		RequestID:    requestID,
		ReceivedTime: now,
		DecisionTime: now,
		ActionKind:   "restart_service",
		Environment:  "prod",
		Targets:      []string{"web-1", "web-2"},
		Params:       map[string]any{"service": "nginx"},
		Fingerprint:  "fp-" + requestID,
		Tier:         "write",
		RiskLevel:    "high",
		Decision:     "allow",
		MatchedRule:  "default",
		Outcome:      "executed",
	}
}

func TestRecorder_WritesBeforeReturning(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	if err := rec.Record(context.Background(), newRecord("req-1")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Record returned, so the write must already be visible.
	records := store.All()
	if len(records) != 1 {
		t.Fatalf("got %d stored records, want 1", len(records))
	}
	if records[0].ID == "" {
		t.Error("record ID not assigned")
	}
	if records[0].RecordHash == "" {
		t.Error("record hash not computed")
	}
}

func TestRecorder_RedactsAtWrite(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	record := newRecord("req-1")
	record.Params = map[string]any{
		"service":  "nginx",
		"password": "hunter2",
		"command":  "deploy --token abcdef123456789",
	}
	record.TargetResults = []*audit.TargetResult{
		{Target: "web-1", Status: "failed", Error: "auth failed: password=hunter2"},
	}

	if err := rec.Record(context.Background(), record); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	stored := store.All()[0]
	if stored.Params["password"] != redact.Mask {
		t.Errorf("password param = %v, want masked", stored.Params["password"])
	}
	if !strings.Contains(stored.Params["command"].(string), redact.Mask) {
		t.Errorf("command param not masked: %v", stored.Params["command"])
	}
	if stored.Params["service"] != "nginx" {
		t.Errorf("non-sensitive param mutated: %v", stored.Params["service"])
	}
	if strings.Contains(stored.TargetResults[0].Error, "hunter2") {
		t.Errorf("target result error not masked: %q", stored.TargetResults[0].Error)
	}
}

func TestRecorder_HashChain(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	ctx := context.Background()
	for i, id := range []string{"req-1", "req-2", "req-3"} {
		if err := rec.Record(ctx, newRecord(id)); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	records := store.All()
	if records[0].PrevHash != "" {
		t.Errorf("first record prev_hash = %q, want empty", records[0].PrevHash)
	}
	for i := 1; i < len(records); i++ {
		if records[i].PrevHash != records[i-1].RecordHash {
			t.Errorf("record %d prev_hash does not link to record %d", i, i-1)
		}
	}

	if idx, err := VerifyChain(records); idx != -1 {
		t.Errorf("VerifyChain flagged record %d: %v", idx, err)
	}
}

func TestRecorder_ChainSurvivesRestart(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	rec1, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec1.Record(ctx, newRecord("req-1")); err != nil {
		t.Fatal(err)
	}

	// A second recorder over the same storage must continue the chain.
	rec2, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec2.Record(ctx, newRecord("req-2")); err != nil {
		t.Fatal(err)
	}

	records := store.All()
	if idx, err := VerifyChain(records); idx != -1 {
		t.Errorf("VerifyChain flagged record %d: %v", idx, err)
	}
}

func TestVerifyChain_DetectsTamper(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, id := range []string{"req-1", "req-2", "req-3"} {
		if err := rec.Record(ctx, newRecord(id)); err != nil {
			t.Fatal(err)
		}
	}

	records := store.All()

	// Alter a stored field without recomputing the hash.
	records[1].Decision = "deny"
	if idx, _ := VerifyChain(records); idx != 1 {
		t.Errorf("tampered content: VerifyChain returned %d, want 1", idx)
	}

	// Remove a middle record.
	records = store.All()
	removed := append(records[:1], records[2])
	if idx, _ := VerifyChain(removed); idx != 1 {
		t.Errorf("removed record: VerifyChain returned %d, want 1", idx)
	}
}

// ctxCheckingStorage fails the append when the write context is done,
// the way a database-backed storage would.
type ctxCheckingStorage struct {
	*storage.MemoryStorage
}

func (s *ctxCheckingStorage) Append(ctx context.Context, record *audit.Record) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "append", err)
	}
	return s.MemoryStorage.Append(ctx, record)
}

func TestRecorder_WriteSurvivesCallerCancellation(t *testing.T) {
	store := &ctxCheckingStorage{storage.NewMemoryStorage()}
	rec, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A cancelled submission still has a decided outcome to persist.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rec.Record(ctx, newRecord("req-1")); err != nil {
		t.Fatalf("Record failed under cancelled caller context: %v", err)
	}
	if got := len(store.All()); got != 1 {
		t.Fatalf("got %d stored records, want 1", got)
	}
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (f *failingStorage) Append(ctx context.Context, record *audit.Record) error {
	return audit.NewStorageError("memory", "append", errors.New("disk full"))
}

func TestRecorder_StorageFailure(t *testing.T) {
	rec, err := NewRecorder(&failingStorage{storage.NewMemoryStorage()}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = rec.Record(context.Background(), newRecord("req-1"))
	var recErr *audit.RecorderError
	if !errors.As(err, &recErr) {
		t.Fatalf("Record error = %v, want RecorderError", err)
	}
}
