package runloop

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckpointVersion is the envelope version this package writes.
const CheckpointVersion = 2

// Envelope is the versioned run-state snapshot taken at turn boundaries and
// terminal transitions. The host owns where and how it is stored; the loop
// only encodes and decodes it.
type Envelope struct {
	Version              int        `json:"version"`
	RunID                string     `json:"run_id"`
	SessionID            string     `json:"session_id"`
	Messages             []Message  `json:"messages"`
	RetryState           RetryState `json:"retry_state"`
	CompactionRetryCount int        `json:"compaction_retry_count"`
	CreatedAt            time.Time  `json:"created_at"`
}

// EncodeCheckpoint serializes an envelope at the current version.
func EncodeCheckpoint(env Envelope) ([]byte, error) {
	env.Version = CheckpointVersion
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// migrations upgrade a decoded document one version step at a time.
// migrations[n] transforms a version-n document into version n+1.
var migrations = map[int]func(doc map[string]any) error{
	1: migrateV1toV2,
}

// migrateV1toV2 upgrades the original envelope layout: v1 tracked retries as
// retry_state.attempts and had no compaction retry counter.
func migrateV1toV2(doc map[string]any) error {
	if rs, ok := doc["retry_state"].(map[string]any); ok {
		if attempts, ok := rs["attempts"]; ok {
			rs["attempt_count"] = attempts
			delete(rs, "attempts")
		}
	}
	if _, ok := doc["compaction_retry_count"]; !ok {
		doc["compaction_retry_count"] = 0
	}
	doc["version"] = 2
	return nil
}

// DecodeCheckpoint deserializes an envelope, migrating older versions
// forward one step at a time. An envelope whose version is unrecognized
// fails closed with a *MigrationError; it is never silently treated as a
// fresh run.
func DecodeCheckpoint(data []byte) (Envelope, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	switch {
	case probe.Version < 1:
		return Envelope{}, &MigrationError{Version: probe.Version, Reason: "missing or invalid version tag"}
	case probe.Version > CheckpointVersion:
		return Envelope{}, &MigrationError{
			Version: probe.Version,
			Reason:  fmt.Sprintf("newer than supported version %d", CheckpointVersion),
		}
	}

	if probe.Version < CheckpointVersion {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return Envelope{}, fmt.Errorf("decode checkpoint: %w", err)
		}
		for v := probe.Version; v < CheckpointVersion; v++ {
			migrate, ok := migrations[v]
			if !ok {
				return Envelope{}, &MigrationError{Version: v, Reason: "no migration path"}
			}
			if err := migrate(doc); err != nil {
				return Envelope{}, &MigrationError{Version: v, Reason: err.Error()}
			}
		}
		migrated, err := json.Marshal(doc)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode checkpoint: %w", err)
		}
		data = migrated
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return env, nil
}
