package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStoredRecord_TableNames(t *testing.T) {
	if got := (StoredRecord{}).TableName(); got != "records" {
		t.Fatalf("StoredRecord table = %q", got)
	}
	if got := (CacheGeneration{}).TableName(); got != "cache_generations" {
		t.Fatalf("CacheGeneration table = %q", got)
	}
	if got := (CachedResponse{}).TableName(); got != "cached_responses" {
		t.Fatalf("CachedResponse table = %q", got)
	}
}

func TestStoredRecord_Clone_DoesNotShareBuffer(t *testing.T) {
	orig := StoredRecord{ID: "m1", Type: "mess_profile_cache", Payload: json.RawMessage(`{"a":1}`)}
	cp := orig.Clone()
	cp.Payload[2] = 'b'
	if string(orig.Payload) != `{"a":1}` {
		t.Fatalf("clone mutated original payload: %s", orig.Payload)
	}
}

func TestAsQueuedAction_RoundTripAndTypeCheck(t *testing.T) {
	rec := StoredRecord{
		ID:        "action_1000_x",
		Type:      ActionQueueType,
		Payload:   json.RawMessage(`{"action_type":"create_checkin","data":{"mess":"m1"}}`),
		Timestamp: 1000,
		Seq:       7,
	}
	a, err := AsQueuedAction(rec)
	if err != nil {
		t.Fatalf("AsQueuedAction: %v", err)
	}
	if a.Payload.ActionType != "create_checkin" || a.Seq != 7 || a.Timestamp != 1000 {
		t.Fatalf("unexpected action: %+v", a)
	}

	type checkin struct {
		Mess string `json:"mess"`
	}
	data, err := DecodeData[checkin](a)
	if err != nil || data.Mess != "m1" {
		t.Fatalf("DecodeData = %+v, %v", data, err)
	}

	back, err := a.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if back.Type != ActionQueueType || back.ID != rec.ID {
		t.Fatalf("unexpected record: %+v", back)
	}

	rec.Type = "mess_profile_cache"
	if _, err := AsQueuedAction(rec); !errors.Is(err, ErrNotAction) {
		t.Fatalf("expected ErrNotAction, got %v", err)
	}
}

func TestAsQueuedAction_MalformedPayload(t *testing.T) {
	rec := StoredRecord{ID: "a", Type: ActionQueueType, Payload: json.RawMessage(`{`)}
	if _, err := AsQueuedAction(rec); err == nil {
		t.Fatalf("expected decode error")
	}
}
