package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"flowgate-hq/flowgate/pkg/audit"
)

// chainPayload is the canonical content covered by a record's hash.
// RecordHash itself is excluded; PrevHash is included so the chain
// links. JSON marshaling sorts map keys, which makes the encoding
// deterministic for identical records.
type chainPayload struct {
	ID           string               `json:"id"`
	RequestID    string               `json:"request_id"`
	ReceivedTime int64                `json:"received_time"`
	RecordedTime int64                `json:"recorded_time"`
	ActionKind   string               `json:"action_kind"`
	Environment  string               `json:"environment"`
	Targets      []string             `json:"targets"`
	Params       map[string]any       `json:"params"`
	Fingerprint  string               `json:"fingerprint"`
	Tier         string               `json:"tier"`
	RiskLevel    string               `json:"risk_level"`
	Decision     string               `json:"decision"`
	MatchedRule  string               `json:"matched_rule"`
	TokenID      string               `json:"token_id"`
	Outcome      string               `json:"outcome"`
	Results      []*audit.TargetResult `json:"results"`
	Error        string               `json:"error"`
	PrevHash     string               `json:"prev_hash"`
}

// ComputeHash computes the hex-encoded SHA-256 hash of a record's
// canonical content. The record's PrevHash must already be set.
func ComputeHash(record *audit.Record) (string, error) {
	payload := chainPayload{
		ID:           record.ID,
		RequestID:    record.RequestID,
		ReceivedTime: record.ReceivedTime.UnixMilli(),
		RecordedTime: record.RecordedTime.UnixMilli(),
		ActionKind:   record.ActionKind,
		Environment:  record.Environment,
		Targets:      record.Targets,
		Params:       record.Params,
		Fingerprint:  record.Fingerprint,
		Tier:         record.Tier,
		RiskLevel:    record.RiskLevel,
		Decision:     record.Decision,
		MatchedRule:  record.MatchedRule,
		TokenID:      record.TokenID,
		Outcome:      record.Outcome,
		Results:      record.TargetResults,
		Error:        record.Error,
		PrevHash:     record.PrevHash,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode record for hashing: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks the hash chain over records ordered oldest first.
// It returns the index of the first record whose stored hash does not
// match its recomputed hash or whose PrevHash does not link to the
// preceding record, or -1 when the chain is intact.
func VerifyChain(records []*audit.Record) (int, error) {
	prev := ""
	for i, record := range records {
		if i > 0 {
			prev = records[i-1].RecordHash
		}
		if record.PrevHash != prev {
			return i, fmt.Errorf("record %s: prev_hash %q does not link to %q", record.ID, record.PrevHash, prev)
		}
		computed, err := ComputeHash(record)
		if err != nil {
			return i, err
		}
		if computed != record.RecordHash {
			return i, fmt.Errorf("record %s: stored hash %q does not match computed %q", record.ID, record.RecordHash, computed)
		}
	}
	return -1, nil
}
