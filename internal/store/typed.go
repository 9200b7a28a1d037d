package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// PutValue encodes v as the payload of record id/typ and stores it.
func PutValue[T any](ctx context.Context, s *Store, id, typ string, timestamp int64, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return wrap(ErrInvalidRecord, "put", err)
	}
	return s.Put(ctx, domain.StoredRecord{ID: id, Type: typ, Payload: raw, Timestamp: timestamp})
}

// GetValue loads record id and decodes its payload into T. The boolean is
// false when the record does not exist.
func GetValue[T any](ctx context.Context, s *Store, id string) (T, bool, error) {
	var v T
	r, err := s.Get(ctx, id)
	if err != nil || r == nil {
		return v, false, err
	}
	if err := json.Unmarshal(r.Payload, &v); err != nil {
		return v, true, wrap(ErrStorageReadFailed, "get", fmt.Errorf("decode %s: %w", id, err))
	}
	return v, true, nil
}

// ListValues decodes the payload of every record tagged typ, in ListByType
// order.
func ListValues[T any](ctx context.Context, s *Store, typ string) ([]T, error) {
	rs, err := s.ListByType(ctx, typ)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		var v T
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			return nil, wrap(ErrStorageReadFailed, "list", fmt.Errorf("decode %s: %w", r.ID, err))
		}
		out = append(out, v)
	}
	return out, nil
}
