package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/repo"
)

// randomSuffix returns nine lowercase alphanumeric characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// EnqueueAction records a deferred mutation for later replay. The id has the
// form "action_<write-time ms>_<random suffix>"; the action also receives the
// next store sequence number, which defines replay order.
func (s *Store) EnqueueAction(ctx context.Context, actionType string, data any) (_ domain.QueuedAction, err error) {
	ctx, end := s.start(ctx, "EnqueueAction", attribute.String("action.type", actionType))
	defer func() { end(err) }()

	if strings.TrimSpace(actionType) == "" {
		return domain.QueuedAction{}, wrap(ErrInvalidRecord, "enqueue", fmt.Errorf("empty action type"))
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.QueuedAction{}, wrap(ErrInvalidRecord, "enqueue", err)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return domain.QueuedAction{}, err
	}

	ms := s.clock.Now().UnixMilli()
	a := domain.QueuedAction{
		ID:        fmt.Sprintf("action_%d_%s", ms, s.suffix()),
		Payload:   domain.ActionPayload{ActionType: actionType, Data: raw},
		Timestamp: ms,
		Seq:       s.seq.Add(1),
	}
	rec, err := a.Record()
	if err != nil {
		return domain.QueuedAction{}, wrap(ErrInvalidRecord, "enqueue", err)
	}
	if err := repo.UpsertRecord(ctx, db, &rec); err != nil {
		return domain.QueuedAction{}, wrap(ErrStorageWriteFailed, "enqueue", err)
	}
	return a, nil
}

// ListQueuedActions returns every queued action, oldest first. Order follows
// the store sequence, then timestamp, so entries enqueued in the same
// millisecond or across a clock adjustment keep their enqueue order.
// Records whose payload cannot be decoded are skipped and logged.
func (s *Store) ListQueuedActions(ctx context.Context) (_ []domain.QueuedAction, err error) {
	ctx, end := s.start(ctx, "ListQueuedActions")
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := repo.ListRecordsByType(ctx, db, domain.ActionQueueType)
	if err != nil {
		return nil, wrap(ErrStorageReadFailed, "list actions", err)
	}

	out := make([]domain.QueuedAction, 0, len(rs))
	for _, r := range rs {
		a, err := domain.AsQueuedAction(r)
		if err != nil {
			log.Warn().Err(err).Str("record_id", r.ID).Msg("skipping malformed queued action")
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	queueDepth.Set(float64(len(out)))
	return out, nil
}

// RemoveQueuedAction deletes a replayed action. Ids that are absent, or that
// name a record of another type, are left alone.
func (s *Store) RemoveQueuedAction(ctx context.Context, id string) (err error) {
	ctx, end := s.start(ctx, "RemoveQueuedAction", attribute.String("record.id", id))
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := repo.DeleteRecordOfType(ctx, db, id, domain.ActionQueueType); err != nil {
		return wrap(ErrStorageWriteFailed, "remove action", err)
	}
	return nil
}
