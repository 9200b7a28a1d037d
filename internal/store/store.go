// Package store – Store
//
// Store is the long-lived service object owning the record database handle.
// The handle is opened lazily on first use and memoized: concurrent callers of
// Init (or of any operation) share the same handle, which is established at
// most once per Store. A failed initialization is memoized too and surfaces as
// ErrStorageUnavailable on every later call.
//
// Observability: every operation records an OpenTelemetry span and a
// store_operations_total sample labelled with the outcome.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/repo"
)

// Clock abstracts time retrieval so ids and timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for action ids and timestamps.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSuffix overrides the random suffix generator used for action ids.
func WithSuffix(fn func() string) Option {
	return func(s *Store) { s.suffix = fn }
}

// WithTracing installs the GORM OpenTelemetry plugin on the handle.
func WithTracing(enabled bool) Option {
	return func(s *Store) { s.tracing = enabled }
}

// Store is the record store service. It is safe for concurrent use.
type Store struct {
	path    string
	clock   Clock
	suffix  func() string
	tracing bool

	once    sync.Once
	db      *gorm.DB
	initErr error

	// seq hands out monotonically increasing sequence numbers to queued
	// actions; seeded from MAX(seq) at init.
	seq atomic.Int64
}

// New returns a Store persisting to the SQLite file at path. Nothing is
// opened until Init or the first operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		clock:  realClock{},
		suffix: randomSuffix,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init opens (or creates) the database, migrates the schema and seeds the
// action sequence. It is idempotent and memoized.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.handle(ctx)
	return err
}

// handle returns the live database handle, initializing it on first use.
// Initialization runs detached from the caller's cancellation so one
// impatient caller cannot poison the memoized result for everyone else.
func (s *Store) handle(ctx context.Context) (*gorm.DB, error) {
	s.once.Do(func() {
		s.db, s.initErr = s.open(context.WithoutCancel(ctx))
	})
	return s.db, s.initErr
}

func (s *Store) open(ctx context.Context) (*gorm.DB, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, wrap(ErrStorageUnavailable, "init", errors.New("empty database path"))
	}
	db, err := repo.OpenSQLite(s.path)
	if err != nil {
		return nil, wrap(ErrStorageUnavailable, "init", err)
	}
	if s.tracing {
		if err := repo.EnableTracing(db); err != nil {
			return nil, wrap(ErrStorageUnavailable, "init", err)
		}
	}
	if err := repo.AutoMigrateRecords(db); err != nil {
		return nil, wrap(ErrStorageUnavailable, "init", err)
	}
	maxSeq, err := repo.MaxRecordSeq(ctx, db)
	if err != nil {
		return nil, wrap(ErrStorageUnavailable, "init", err)
	}
	s.seq.Store(maxSeq)
	return db, nil
}

// DB exposes the initialized handle to collaborators sharing the database
// (idempotency bookkeeping in the HTTP layer).
func (s *Store) DB(ctx context.Context) (*gorm.DB, error) {
	return s.handle(ctx)
}

// Close releases the database handle if one was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Put upserts rec by id. Writing the same record twice leaves the same state
// as writing it once. The caller's record is copied before it is stored.
func (s *Store) Put(ctx context.Context, rec domain.StoredRecord) (err error) {
	ctx, end := s.start(ctx, "Put", attribute.String("record.id", rec.ID), attribute.String("record.type", rec.Type))
	defer func() { end(err) }()

	if err := validate(&rec); err != nil {
		return err
	}
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	cp := rec.Clone()
	if cp.Type != domain.ActionQueueType {
		if err := repo.UpsertRecord(ctx, db, &cp); err != nil {
			return wrap(ErrStorageWriteFailed, "put", err)
		}
		return nil
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.actionSeq(ctx, tx, cp.ID)
		if err != nil {
			return err
		}
		cp.Seq = seq
		return repo.UpsertRecord(ctx, tx, &cp)
	})
	if err != nil {
		return wrap(ErrStorageWriteFailed, "put", err)
	}
	return nil
}

// actionSeq returns the replay position for a queued action written through
// Put: a replaced action keeps its place, a new one goes to the back.
func (s *Store) actionSeq(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	prev, err := repo.GetRecord(ctx, tx, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return 0, err
	case prev.Type == domain.ActionQueueType && prev.Seq > 0:
		return prev.Seq, nil
	}
	return s.seq.Add(1), nil
}

// Get returns the record stored under id, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (_ *domain.StoredRecord, err error) {
	ctx, end := s.start(ctx, "Get", attribute.String("record.id", id))
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	r, err := repo.GetRecord(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(ErrStorageReadFailed, "get", err)
	}
	cp := r.Clone()
	return &cp, nil
}

// ListByType returns every record tagged typ, ordered by timestamp then
// sequence. Callers should rely on the timestamp field, not slice order, for
// chronology across independent writers.
func (s *Store) ListByType(ctx context.Context, typ string) (_ []domain.StoredRecord, err error) {
	ctx, end := s.start(ctx, "ListByType", attribute.String("record.type", typ))
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := repo.ListRecordsByType(ctx, db, typ)
	if err != nil {
		return nil, wrap(ErrStorageReadFailed, "list", err)
	}
	return rs, nil
}

// Remove deletes the record stored under id. Removing a missing id is not an
// error.
func (s *Store) Remove(ctx context.Context, id string) (err error) {
	ctx, end := s.start(ctx, "Remove", attribute.String("record.id", id))
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := repo.DeleteRecord(ctx, db, id); err != nil {
		return wrap(ErrStorageWriteFailed, "remove", err)
	}
	return nil
}

// Clear empties the whole table (logout / reset).
func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, end := s.start(ctx, "Clear")
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := repo.DeleteAllRecords(ctx, db); err != nil {
		return wrap(ErrStorageWriteFailed, "clear", err)
	}
	return nil
}

// TypeCount is the number of records carrying one type tag.
type TypeCount = repo.TypeCount

// Stats returns per-type record counts.
func (s *Store) Stats(ctx context.Context) (_ []TypeCount, err error) {
	ctx, end := s.start(ctx, "Stats")
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	out, err := repo.CountRecordsByType(ctx, db)
	if err != nil {
		return nil, wrap(ErrStorageReadFailed, "stats", err)
	}
	return out, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (_ int64, err error) {
	ctx, end := s.start(ctx, "Count")
	defer func() { end(err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	n, err := repo.CountRecords(ctx, db)
	if err != nil {
		return 0, wrap(ErrStorageReadFailed, "count", err)
	}
	return n, nil
}

// validate normalizes an empty payload to JSON null and rejects records the
// table cannot hold.
func validate(rec *domain.StoredRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return wrap(ErrInvalidRecord, "put", errors.New("empty id"))
	}
	if strings.TrimSpace(rec.Type) == "" {
		return wrap(ErrInvalidRecord, "put", errors.New("empty type"))
	}
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("null")
	} else if !json.Valid(rec.Payload) {
		return wrap(ErrInvalidRecord, "put", errors.New("payload is not valid JSON"))
	}
	return nil
}

// start opens a span for op and returns a closer recording the outcome.
func (s *Store) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer("store/Store").Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		observe(op, err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
