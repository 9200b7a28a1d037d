// Package handlers exposes the record store, the reachability flag and the
// edge worker's push entry point over HTTP.
//
// Handlers are transport-thin: they validate input, call the service
// interfaces below, and translate results and errors into JSON responses.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/edge"
	"github.com/tbourn/go-mess-offline/internal/store"
)

// RecordStore is the record store surface used by the API. *store.Store
// satisfies it.
type RecordStore interface {
	Put(ctx context.Context, rec domain.StoredRecord) error
	Get(ctx context.Context, id string) (*domain.StoredRecord, error)
	ListByType(ctx context.Context, typ string) ([]domain.StoredRecord, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) ([]store.TypeCount, error)
	Count(ctx context.Context) (int64, error)

	EnqueueAction(ctx context.Context, actionType string, data any) (domain.QueuedAction, error)
	ListQueuedActions(ctx context.Context) ([]domain.QueuedAction, error)
	RemoveQueuedAction(ctx context.Context, id string) error
}

// IdempotencyStore remembers which resource an (client, scope, key) tuple
// produced. Reserve claims the key before the resource exists and reports
// false when another request already holds it; Lookup then returns an empty
// resourceID while that request is still in flight.
type IdempotencyStore interface {
	Lookup(ctx context.Context, clientID, scope, key string, now time.Time) (resourceID string, found bool, err error)
	Reserve(ctx context.Context, clientID, scope, key string) (reserved bool, err error)
	Complete(ctx context.Context, clientID, scope, key, resourceID string, status int) error
	Release(ctx context.Context, clientID, scope, key string) error
}

// Reachability is the shared online/offline flag.
type Reachability interface {
	Online() bool
	Since() time.Time
	Set(online bool)
}

// EdgeStatus reports the edge worker lifecycle.
type EdgeStatus interface {
	State() edge.State
	Generation() string
}

// PushReceiver handles an incoming push message.
type PushReceiver interface {
	HandlePush(ctx context.Context, payload []byte) (edge.Notification, error)
}

// NotificationLister returns the notifications shown so far, oldest first.
type NotificationLister interface {
	List() []edge.Notification
}

// Deps bundles handler dependencies. Store is required; the rest may be nil,
// in which case the matching endpoints answer 404 or degrade as documented on
// each handler.
type Deps struct {
	Store         RecordStore
	Idempotency   IdempotencyStore
	Reachability  Reachability
	Edge          EdgeStatus
	Push          PushReceiver
	Notifications NotificationLister
}

// Handlers groups the API endpoints.
type Handlers struct {
	store  RecordStore
	idem   IdempotencyStore
	reach  Reachability
	edge   EdgeStatus
	push   PushReceiver
	notifs NotificationLister
	now    func() time.Time
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		store:  d.Store,
		idem:   d.Idempotency,
		reach:  d.Reachability,
		edge:   d.Edge,
		push:   d.Push,
		notifs: d.Notifications,
		now:    time.Now,
	}
}
