package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

const queueScope = "POST /api/v1/queue"

func TestIdempotency_CreateGetDuplicate(t *testing.T) {
	ctx := context.Background()
	db := newRecordRepoDB(t, &domain.Idempotency{})
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "tablet-a", queueScope, "k9", "action_9_z", 201, 90*time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.ClientID != "tablet-a" || rec.ExpiresAt.Before(start.Add(89*time.Minute)) {
		t.Fatalf("record=%+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "tablet-a", queueScope, "k9", time.Now().UTC())
	if err != nil || got.ResourceID != "action_9_z" || got.Status != 201 {
		t.Fatalf("get=%+v err=%v", got, err)
	}
	if _, err := GetIdempotency(ctx, db, "tablet-b", queueScope, "k9", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other client should not see the key, err=%v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "tablet-a", queueScope, "k9", "action_x", 201, time.Minute); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestGetIdempotency_NotFoundCases(t *testing.T) {
	ctx := context.Background()
	db := newRecordRepoDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	expired := &domain.Idempotency{
		ID: "expired", ClientID: "tablet-a", Scope: queueScope, Key: "old",
		ResourceID: "action_1_a", Status: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(expired).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := map[string]struct{ scope, key string }{
		"blank scope": {"   ", "old"},
		"expired":     {queueScope, "old"},
		"missing":     {queueScope, "nope"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := GetIdempotency(ctx, db, "tablet-a", tc.scope, tc.key, now)
			if got != nil || !errors.Is(err, ErrNotFound) {
				t.Fatalf("got=%v err=%v", got, err)
			}
		})
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("purge=%d err=%v", n, err)
	}
}

func TestCreateIdempotency_NoTable(t *testing.T) {
	db := newRecordRepoDB(t)
	_, err := CreateIdempotency(context.Background(), db, "tablet-a", queueScope, "k", "a", 201, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("want a plain driver error, got %v", err)
	}
}

func TestIdempotency_ReserveCompleteRelease(t *testing.T) {
	ctx := context.Background()
	db := newRecordRepoDB(t, &domain.Idempotency{})

	rec, err := ReserveIdempotency(ctx, db, "tablet-a", queueScope, "k1", time.Hour)
	if err != nil || !rec.Pending() {
		t.Fatalf("reserve=%+v err=%v", rec, err)
	}
	if _, err := ReserveIdempotency(ctx, db, "tablet-a", queueScope, "k1", time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second reserve: want ErrDuplicate, got %v", err)
	}

	// A failed request gives the key back.
	if err := ReleaseIdempotency(ctx, db, "tablet-a", queueScope, "k1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := ReserveIdempotency(ctx, db, "tablet-a", queueScope, "k1", time.Hour); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	if err := CompleteIdempotency(ctx, db, "tablet-a", queueScope, "k1", "action_5_q", 201); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "tablet-a", queueScope, "k1", time.Now().UTC())
	if err != nil || got.Pending() || got.ResourceID != "action_5_q" || got.Status != 201 {
		t.Fatalf("get=%+v err=%v", got, err)
	}
	// Completed keys are not released.
	if err := ReleaseIdempotency(ctx, db, "tablet-a", queueScope, "k1"); err != nil {
		t.Fatalf("release completed: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "tablet-a", queueScope, "k1", time.Now().UTC()); err != nil {
		t.Fatalf("completed key was dropped: %v", err)
	}

	if err := CompleteIdempotency(ctx, db, "tablet-b", queueScope, "k1", "a", 201); !errors.Is(err, ErrNotFound) {
		t.Fatalf("complete unreserved: want ErrNotFound, got %v", err)
	}
}

func TestReserveIdempotency_ReplacesExpired(t *testing.T) {
	ctx := context.Background()
	db := newRecordRepoDB(t, &domain.Idempotency{})
	now := time.Now().UTC()
	old := &domain.Idempotency{
		ID: "old", ClientID: "tablet-a", Scope: queueScope, Key: "k2",
		ResourceID: "action_1_a", Status: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := ReserveIdempotency(ctx, db, "tablet-a", queueScope, "k2", time.Hour)
	if err != nil || rec.ID == "old" || !rec.Pending() {
		t.Fatalf("reserve over expired=%+v err=%v", rec, err)
	}
}
