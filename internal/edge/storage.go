package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/repo"
)

// Entry is one cached response.
type Entry struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// CacheStorage holds named cache generations in a SQLite database.
type CacheStorage struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenCacheStorage opens (or creates) the cache database at path.
func OpenCacheStorage(path string, tracing bool) (*CacheStorage, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open cache storage: %w", err)
	}
	if tracing {
		if err := repo.EnableTracing(db); err != nil {
			return nil, fmt.Errorf("cache storage tracing: %w", err)
		}
	}
	if err := repo.AutoMigrateEdge(db); err != nil {
		return nil, fmt.Errorf("migrate cache storage: %w", err)
	}
	return NewCacheStorage(db), nil
}

// NewCacheStorage wraps an already migrated handle.
func NewCacheStorage(db *gorm.DB) *CacheStorage {
	return &CacheStorage{db: db, now: time.Now}
}

// PutAll stores every entry under name in a single transaction.
func (c *CacheStorage) PutAll(ctx context.Context, name string, entries []Entry) error {
	rows := make([]domain.CachedResponse, 0, len(entries))
	for _, e := range entries {
		h, err := json.Marshal(e.Header)
		if err != nil {
			return fmt.Errorf("encode header for %s: %w", e.URL, err)
		}
		rows = append(rows, domain.CachedResponse{URL: e.URL, Status: e.Status, Header: h, Body: e.Body})
	}
	return repo.PutResponses(ctx, c.db, name, rows, c.now())
}

// Put stores a single entry under name.
func (c *CacheStorage) Put(ctx context.Context, name string, e Entry) error {
	return c.PutAll(ctx, name, []Entry{e})
}

// Match looks up url in generation name.
func (c *CacheStorage) Match(ctx context.Context, name, url string) (*Entry, bool, error) {
	r, err := repo.GetResponse(ctx, c.db, name, url)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e := &Entry{URL: r.URL, Status: r.Status, Body: r.Body, Header: http.Header{}}
	if len(r.Header) > 0 {
		if err := json.Unmarshal(r.Header, &e.Header); err != nil {
			return nil, false, fmt.Errorf("decode header for %s: %w", url, err)
		}
	}
	return e, true, nil
}

// Keys lists generation names, newest first.
func (c *CacheStorage) Keys(ctx context.Context) ([]string, error) {
	gens, err := repo.ListGenerations(ctx, c.db)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(gens))
	for _, g := range gens {
		out = append(out, g.Name)
	}
	return out, nil
}

// Delete removes generation name and its entries.
func (c *CacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	return repo.DeleteGeneration(ctx, c.db, name)
}

// Len returns the number of entries in generation name.
func (c *CacheStorage) Len(ctx context.Context, name string) (int64, error) {
	return repo.CountResponses(ctx, c.db, name)
}

// Close releases the database handle.
func (c *CacheStorage) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
