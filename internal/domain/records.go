// Package domain defines the persistence models shared by the record store,
// the edge cache, and the HTTP layer. These types are mapped with GORM and
// form the core data layer of the offline cache.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionQueueType tags records that hold a deferred mutation awaiting replay.
const ActionQueueType = "action_queue"

// StoredRecord is the uniform entity persisted by the record store.
//
// Fields:
//   - ID: caller-supplied unique key; a write with an existing ID replaces
//     the prior row.
//   - Type: logical category tag (e.g. "mess_profile_cache"); indexed, not unique.
//   - Payload: opaque JSON document, never inspected by the store.
//   - Timestamp: write time in milliseconds since the Unix epoch; indexed.
//   - Seq: store-assigned monotonic sequence, breaks ties between equal
//     timestamps and survives wall-clock adjustments.
type StoredRecord struct {
	ID        string          `json:"id"        gorm:"type:TEXT NOT NULL;primaryKey"`
	Type      string          `json:"type"      gorm:"type:TEXT NOT NULL;index:idx_records_type"`
	Payload   json.RawMessage `json:"payload"   gorm:"type:BLOB NOT NULL"`
	Timestamp int64           `json:"timestamp" gorm:"type:INTEGER NOT NULL;index:idx_records_timestamp"`
	Seq       int64           `json:"seq"       gorm:"type:INTEGER NOT NULL;index:idx_records_seq"`
}

// TableName returns the database table name for StoredRecord.
func (StoredRecord) TableName() string { return "records" }

// Clone returns a deep copy so callers never share the payload buffer with
// the store or with each other.
func (r StoredRecord) Clone() StoredRecord {
	if r.Payload != nil {
		p := make(json.RawMessage, len(r.Payload))
		copy(p, r.Payload)
		r.Payload = p
	}
	return r
}

// ActionPayload is the payload of a queued action record.
type ActionPayload struct {
	ActionType string          `json:"action_type"`
	Data       json.RawMessage `json:"data"`
}

// QueuedAction is a StoredRecord whose type is ActionQueueType, with its
// payload decoded.
type QueuedAction struct {
	ID        string        `json:"id"`
	Payload   ActionPayload `json:"payload"`
	Timestamp int64         `json:"timestamp"`
	Seq       int64         `json:"seq"`
}

// ErrNotAction is returned by AsQueuedAction for records of another type.
var ErrNotAction = errors.New("record is not a queued action")

// AsQueuedAction decodes r as a QueuedAction.
func AsQueuedAction(r StoredRecord) (QueuedAction, error) {
	if r.Type != ActionQueueType {
		return QueuedAction{}, ErrNotAction
	}
	var p ActionPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return QueuedAction{}, fmt.Errorf("decode action %s: %w", r.ID, err)
	}
	return QueuedAction{ID: r.ID, Payload: p, Timestamp: r.Timestamp, Seq: r.Seq}, nil
}

// Record converts the action back into its stored form.
func (a QueuedAction) Record() (StoredRecord, error) {
	b, err := json.Marshal(a.Payload)
	if err != nil {
		return StoredRecord{}, err
	}
	return StoredRecord{ID: a.ID, Type: ActionQueueType, Payload: b, Timestamp: a.Timestamp, Seq: a.Seq}, nil
}

// DecodeData unmarshals the action's data into T.
func DecodeData[T any](a QueuedAction) (T, error) {
	var v T
	if len(a.Payload.Data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(a.Payload.Data, &v)
	return v, err
}
