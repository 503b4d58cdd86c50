package storage

import (
	"context"
	"testing"
	"time"

	"flowgate-hq/flowgate/pkg/audit"
)

func newSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(&SQLiteConfig{
		Path:         t.TempDir() + "/audit.db",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id, requestID string, recorded time.Time) *audit.Record {
	confirmed := recorded.Add(-time.Minute)
	return &audit.Record{
		ID:           id,
		RequestID:    requestID,
		ReceivedTime: recorded.Add(-2 * time.Minute),
		DecisionTime: recorded.Add(-2 * time.Minute),
		RecordedTime: recorded,
		ActionKind:   "restart_service",
		Environment:  "prod",
		Targets:      []string{"web-1", "web-2"},
		Params:       map[string]any{"service": "nginx", "graceful": true},
		Tags:         map[string]string{"team": "platform"},
		Fingerprint:  "fp-" + requestID,
		Tier:         "write",
		RiskLevel:    "high",
		Decision:     "require_confirm",
		MatchedRule:  "prod_write_protection",
		RuleMessage:  "production writes need confirmation",
		TokenID:      "tok-" + id,
		ConfirmedAt:  &confirmed,
		Outcome:      "executed",
		TargetResults: []*audit.TargetResult{
			{Target: "web-1", Status: "success", DurationMS: 120},
			{Target: "web-2", Status: "failed", Error: "connection refused", DurationMS: 45},
		},
		DurationMS: 200,
		Actor:      "ops@example.com",
		PrevHash:   "",
		RecordHash: "hash-" + id,
	}
}

func TestSQLiteStorage_AppendAndQuery(t *testing.T) {
	s := newSQLiteStorage(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	want := sampleRecord("rec-1", "req-1", now)
	if err := s.Append(ctx, want); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := s.Query(ctx, &audit.Query{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID != want.ID || got.ActionKind != want.ActionKind || got.Decision != want.Decision {
		t.Errorf("record mismatch: got %+v", got)
	}
	if !got.RecordedTime.Equal(want.RecordedTime) {
		t.Errorf("RecordedTime = %v, want %v", got.RecordedTime, want.RecordedTime)
	}
	if got.Params["service"] != "nginx" {
		t.Errorf("params not round-tripped: %v", got.Params)
	}
	if len(got.TargetResults) != 2 || got.TargetResults[1].Error != "connection refused" {
		t.Errorf("target results not round-tripped: %+v", got.TargetResults)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(*want.ConfirmedAt) {
		t.Errorf("ConfirmedAt = %v, want %v", got.ConfirmedAt, want.ConfirmedAt)
	}
	if got.Tags["team"] != "platform" {
		t.Errorf("tags not round-tripped: %v", got.Tags)
	}
}

func TestSQLiteStorage_QueryFilters(t *testing.T) {
	s := newSQLiteStorage(t)
	ctx := context.Background()
	now := time.Now()

	r1 := sampleRecord("rec-1", "req-1", now.Add(-time.Hour))
	r2 := sampleRecord("rec-2", "req-2", now)
	r2.Decision = "deny"
	r2.Outcome = "denied"
	for _, r := range []*audit.Record{r1, r2} {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	denied, err := s.Query(ctx, &audit.Query{Decision: "deny"})
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 1 || denied[0].ID != "rec-2" {
		t.Errorf("decision filter: got %d records", len(denied))
	}

	cutoff := now.Add(-30 * time.Minute)
	recent, err := s.Query(ctx, &audit.Query{StartTime: &cutoff})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != "rec-2" {
		t.Errorf("time filter: got %d records", len(recent))
	}

	count, err := s.Count(ctx, &audit.Query{Environment: "prod"})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestSQLiteStorage_QueryOrderAndPagination(t *testing.T) {
	s := newSQLiteStorage(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		r := sampleRecord(
			"rec-"+string(rune('a'+i)),
			"req-"+string(rune('a'+i)),
			now.Add(time.Duration(i)*time.Second),
		)
		if err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.Query(ctx, &audit.Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d records, want 2", len(page))
	}
	// Newest first, offset skips the newest.
	if page[0].ID != "rec-d" || page[1].ID != "rec-c" {
		t.Errorf("order wrong: %s, %s", page[0].ID, page[1].ID)
	}
}

func TestSQLiteStorage_LastHash(t *testing.T) {
	s := newSQLiteStorage(t)
	ctx := context.Background()

	hash, err := s.LastHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("empty log LastHash = %q, want empty", hash)
	}

	now := time.Now()
	if err := s.Append(ctx, sampleRecord("rec-1", "req-1", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, sampleRecord("rec-2", "req-2", now.Add(time.Second))); err != nil {
		t.Fatal(err)
	}

	hash, err = s.LastHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "hash-rec-2" {
		t.Errorf("LastHash = %q, want hash-rec-2", hash)
	}
}
