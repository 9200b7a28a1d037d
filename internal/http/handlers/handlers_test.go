package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/edge"
	"github.com/tbourn/go-mess-offline/internal/http/middleware"
	"github.com/tbourn/go-mess-offline/internal/store"
)

// ---------- test plumbing ----------

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "records.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type memIdem struct {
	mu   sync.Mutex
	recs map[string]string
}

func newMemIdem() *memIdem { return &memIdem{recs: map[string]string{}} }

func (m *memIdem) Lookup(_ context.Context, client, scope, key string, _ time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.recs[client+"|"+scope+"|"+key]
	return id, ok, nil
}

// Reserve marks the key with an empty resource id until Complete.
func (m *memIdem) Reserve(_ context.Context, client, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := client + "|" + scope + "|" + key
	if _, held := m.recs[k]; held {
		return false, nil
	}
	m.recs[k] = ""
	return true, nil
}

func (m *memIdem) Complete(_ context.Context, client, scope, key, id string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[client+"|"+scope+"|"+key] = id
	return nil
}

func (m *memIdem) Release(_ context.Context, client, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := client + "|" + scope + "|" + key
	if m.recs[k] == "" {
		delete(m.recs, k)
	}
	return nil
}

type fakeReach struct {
	online bool
	since  time.Time
}

func (f *fakeReach) Online() bool     { return f.online }
func (f *fakeReach) Since() time.Time { return f.since }
func (f *fakeReach) Set(v bool)       { f.online = v }

type fakeEdge struct{}

func (fakeEdge) State() edge.State  { return edge.StateActivated }
func (fakeEdge) Generation() string { return "mess-app-v3" }

type fakePush struct {
	got   [][]byte
	shown []edge.Notification
	err   error
}

func (f *fakePush) HandlePush(_ context.Context, payload []byte) (edge.Notification, error) {
	if f.err != nil {
		return edge.Notification{}, f.err
	}
	f.got = append(f.got, payload)
	n := edge.Notification{ID: fmt.Sprintf("n%d", len(f.got)), Title: "t", Body: string(payload)}
	f.shown = append(f.shown, n)
	return n, nil
}

func (f *fakePush) List() []edge.Notification { return f.shown }

// brokenStore fails every call with err.
type brokenStore struct{ err error }

func (b brokenStore) Put(context.Context, domain.StoredRecord) error { return b.err }
func (b brokenStore) Get(context.Context, string) (*domain.StoredRecord, error) {
	return nil, b.err
}
func (b brokenStore) ListByType(context.Context, string) ([]domain.StoredRecord, error) {
	return nil, b.err
}
func (b brokenStore) Remove(context.Context, string) error             { return b.err }
func (b brokenStore) Clear(context.Context) error                      { return b.err }
func (b brokenStore) Stats(context.Context) ([]store.TypeCount, error) { return nil, b.err }
func (b brokenStore) Count(context.Context) (int64, error)             { return 0, b.err }
func (b brokenStore) ListQueuedActions(context.Context) ([]domain.QueuedAction, error) {
	return nil, b.err
}
func (b brokenStore) RemoveQueuedAction(context.Context, string) error { return b.err }
func (b brokenStore) EnqueueAction(context.Context, string, any) (domain.QueuedAction, error) {
	return domain.QueuedAction{}, b.err
}

func newAPI(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ClientID(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api := r.Group("/api/v1")
	api.PUT("/records/:id", h.PutRecord)
	api.GET("/records/:id", h.GetRecord)
	api.GET("/records", h.ListRecords)
	api.DELETE("/records/:id", h.DeleteRecord)
	api.DELETE("/records", h.ClearRecords)
	api.GET("/stats", h.Stats)
	api.POST("/queue", h.EnqueueAction)
	api.GET("/queue", h.ListActions)
	api.DELETE("/queue/:id", h.DeleteAction)
	api.GET("/status", h.GetStatus)
	api.PUT("/status", h.SetStatus)
	api.POST("/push", h.Push)
	api.GET("/notifications", h.ListNotifications)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

// ---------- records ----------

func TestRecords_PutGetListRemoveClear(t *testing.T) {
	h := New(Deps{Store: newStore(t)})
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	r := newAPI(h)

	w := do(t, r, http.MethodPut, "/api/v1/records/p1", `{"type":"mess_profile_cache","payload":{"name":"Ana"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("put -> %d %s", w.Code, w.Body.String())
	}
	if got := decode[domain.StoredRecord](t, w); got.Timestamp != 1700000000000 {
		t.Fatalf("timestamp default = %d", got.Timestamp)
	}
	do(t, r, http.MethodPut, "/api/v1/records/p2", `{"type":"mess_profile_cache","payload":2,"timestamp":5}`, nil)
	do(t, r, http.MethodPut, "/api/v1/records/x", `{"type":"other"}`, nil)

	w = do(t, r, http.MethodGet, "/api/v1/records/p1", "", nil)
	rec := decode[domain.StoredRecord](t, w)
	if w.Code != http.StatusOK || rec.Type != "mess_profile_cache" || string(rec.Payload) != `{"name":"Ana"}` {
		t.Fatalf("get -> %d %+v", w.Code, rec)
	}

	w = do(t, r, http.MethodGet, "/api/v1/records?type=mess_profile_cache", "", nil)
	list := decode[ListRecordsResponse](t, w)
	if list.Count != 2 || len(list.Records) != 2 {
		t.Fatalf("list = %+v", list)
	}

	w = do(t, r, http.MethodGet, "/api/v1/stats", "", nil)
	stats := decode[StatsResponse](t, w)
	if stats.Total != 3 || len(stats.ByType) != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/records/p1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/api/v1/records/p1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete missing -> %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/records/p1", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get removed -> %d", w.Code)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/records", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear -> %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/api/v1/records?type=other", "", nil)
	if list := decode[ListRecordsResponse](t, w); list.Count != 0 || list.Records == nil {
		t.Fatalf("after clear = %+v", list)
	}
}

func TestRecords_Validation(t *testing.T) {
	r := newAPI(New(Deps{Store: newStore(t)}))

	if w := do(t, r, http.MethodPut, "/api/v1/records/a", `{"payload":1}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing type -> %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/api/v1/records/a", `{"type":"  "}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank type -> %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/api/v1/records/%20", `{"type":"t"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank id -> %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodGet, "/api/v1/records", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("list without type -> %d", w.Code)
	}
}

func TestRecords_StorageErrors(t *testing.T) {
	unavailable := New(Deps{Store: brokenStore{fmt.Errorf("init: %w: %w", store.ErrStorageUnavailable, errors.New("locked"))}})
	r := newAPI(unavailable)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/records/a", ""},
		{http.MethodPut, "/api/v1/records/a", `{"type":"t"}`},
		{http.MethodGet, "/api/v1/queue", ""},
		{http.MethodPost, "/api/v1/queue", `{"action_type":"a"}`},
		{http.MethodGet, "/api/v1/stats", ""},
	} {
		w := do(t, r, tc.method, tc.path, tc.body, nil)
		if w.Code != http.StatusServiceUnavailable || decode[ErrorResponse](t, w).Code != ErrCodeStorageUnavailable {
			t.Fatalf("%s %s -> %d %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}

	r = newAPI(New(Deps{Store: brokenStore{fmt.Errorf("put: %w: %w", store.ErrStorageWriteFailed, errors.New("full"))}}))
	w := do(t, r, http.MethodDelete, "/api/v1/records", "", nil)
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodeStorageWriteFailed {
		t.Fatalf("clear -> %d %s", w.Code, w.Body.String())
	}
}

// ---------- queue ----------

func TestQueue_EnqueueListRemove(t *testing.T) {
	r := newAPI(New(Deps{Store: newStore(t)}))

	w := do(t, r, http.MethodPost, "/api/v1/queue", `{"action_type":"create_checkin","data":{"meal":"lunch"}}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue -> %d %s", w.Code, w.Body.String())
	}
	first := decode[domain.QueuedAction](t, w)
	if first.Payload.ActionType != "create_checkin" || string(first.Payload.Data) != `{"meal":"lunch"}` {
		t.Fatalf("action = %+v", first)
	}
	w = do(t, r, http.MethodPost, "/api/v1/queue", `{"action_type":"create_checkin","data":{"meal":"dinner"}}`, nil)
	second := decode[domain.QueuedAction](t, w)

	w = do(t, r, http.MethodGet, "/api/v1/queue", "", nil)
	list := decode[ListActionsResponse](t, w)
	if list.Count != 2 || list.Actions[0].ID != first.ID || list.Actions[1].ID != second.ID {
		t.Fatalf("queue = %+v", list)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/queue/"+first.ID, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove -> %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/api/v1/queue", "", nil)
	list = decode[ListActionsResponse](t, w)
	if list.Count != 1 || list.Actions[0].ID != second.ID {
		t.Fatalf("queue after remove = %+v", list)
	}

	if w := do(t, r, http.MethodPost, "/api/v1/queue", `{"data":1}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing action_type -> %d", w.Code)
	}
}

func TestQueue_ETag(t *testing.T) {
	r := newAPI(New(Deps{Store: newStore(t)}))
	do(t, r, http.MethodPost, "/api/v1/queue", `{"action_type":"a"}`, nil)

	w := do(t, r, http.MethodGet, "/api/v1/queue", "", nil)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if w := do(t, r, http.MethodGet, "/api/v1/queue", "", map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional -> %d", w.Code)
	}
	do(t, r, http.MethodPost, "/api/v1/queue", `{"action_type":"b"}`, nil)
	if w := do(t, r, http.MethodGet, "/api/v1/queue", "", map[string]string{"If-None-Match": etag}); w.Code != http.StatusOK {
		t.Fatalf("stale etag -> %d", w.Code)
	}
}

func TestQueue_IdempotentEnqueue(t *testing.T) {
	idem := newMemIdem()
	r := newAPI(New(Deps{Store: newStore(t), Idempotency: idem}))
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-1", "X-Client-ID": "dev-1"}
	body := `{"action_type":"create_checkin","data":{"n":1}}`

	w := do(t, r, http.MethodPost, "/api/v1/queue", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first -> %d", w.Code)
	}
	orig := decode[domain.QueuedAction](t, w)

	w = do(t, r, http.MethodPost, "/api/v1/queue", body, hdr)
	if w.Code != http.StatusOK || w.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay -> %d %v", w.Code, w.Header())
	}
	if got := decode[domain.QueuedAction](t, w); got.ID != orig.ID || got.Payload.ActionType != "create_checkin" {
		t.Fatalf("replay body = %+v", got)
	}

	w = do(t, r, http.MethodGet, "/api/v1/queue", "", nil)
	if n := decode[ListActionsResponse](t, w).Count; n != 1 {
		t.Fatalf("duplicate enqueued: %d", n)
	}

	// Another client with the same key is independent.
	other := map[string]string{middleware.HeaderIdempotencyKey: "k-1", "X-Client-ID": "dev-2"}
	if w := do(t, r, http.MethodPost, "/api/v1/queue", body, other); w.Code != http.StatusCreated {
		t.Fatalf("other client -> %d", w.Code)
	}

	// Replay after the action was drained returns just the id.
	do(t, r, http.MethodDelete, "/api/v1/queue/"+orig.ID, "", nil)
	w = do(t, r, http.MethodPost, "/api/v1/queue", body, hdr)
	if got := decode[domain.QueuedAction](t, w); w.Code != http.StatusOK || got.ID != orig.ID {
		t.Fatalf("replay after drain -> %d %+v", w.Code, got)
	}
}

func TestQueue_IdempotentEnqueueConcurrentRetries(t *testing.T) {
	r := newAPI(New(Deps{Store: newStore(t), Idempotency: newMemIdem()}))
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-race", "X-Client-ID": "dev-1"}
	body := `{"action_type":"create_checkin"}`

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = do(t, r, http.MethodPost, "/api/v1/queue", body, hdr).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusOK, http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d in %v", c, codes)
		}
	}
	if created != 1 {
		t.Fatalf("created %d actions, want 1 (%v)", created, codes)
	}
	w := do(t, r, http.MethodGet, "/api/v1/queue", "", nil)
	if got := decode[ListActionsResponse](t, w).Count; got != 1 {
		t.Fatalf("queue holds %d actions", got)
	}
}

func TestQueue_IdempotencyKeyInFlightAndReleased(t *testing.T) {
	idem := newMemIdem()
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k-2", "X-Client-ID": "dev-1"}
	body := `{"action_type":"a"}`

	// A reservation without a resource means the first request is still running.
	if _, err := idem.Reserve(context.Background(), "dev-1", "POST /api/v1/queue", "k-2"); err != nil {
		t.Fatal(err)
	}
	r := newAPI(New(Deps{Store: newStore(t), Idempotency: idem}))
	w := do(t, r, http.MethodPost, "/api/v1/queue", body, hdr)
	if w.Code != http.StatusConflict || decode[ErrorResponse](t, w).Code != ErrCodeIdempotencyInFlight {
		t.Fatalf("in flight -> %d %s", w.Code, w.Body.String())
	}

	// A failed enqueue gives the key back.
	idem = newMemIdem()
	broken := New(Deps{Store: brokenStore{err: store.ErrStorageUnavailable}, Idempotency: idem})
	if w := do(t, newAPI(broken), http.MethodPost, "/api/v1/queue", body, hdr); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("broken store -> %d", w.Code)
	}
	if _, held, _ := idem.Lookup(context.Background(), "dev-1", "POST /api/v1/queue", "k-2", time.Now()); held {
		t.Fatal("failed enqueue kept the key reserved")
	}
}

// ---------- status / push ----------

func TestStatus_GetAndSet(t *testing.T) {
	reach := &fakeReach{online: true, since: time.Unix(100, 0).UTC()}
	r := newAPI(New(Deps{Store: newStore(t), Reachability: reach, Edge: fakeEdge{}}))

	w := do(t, r, http.MethodGet, "/api/v1/status", "", nil)
	st := decode[StatusResponse](t, w)
	if !st.Online || st.EdgeState != "activated" || st.CacheName != "mess-app-v3" {
		t.Fatalf("status = %+v", st)
	}

	w = do(t, r, http.MethodPut, "/api/v1/status", `{"online":false}`, nil)
	if st := decode[StatusResponse](t, w); w.Code != http.StatusOK || st.Online || reach.online {
		t.Fatalf("set -> %d %+v", w.Code, st)
	}
	if w := do(t, r, http.MethodPut, "/api/v1/status", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing online -> %d", w.Code)
	}
}

func TestStatus_NotConfigured(t *testing.T) {
	r := newAPI(New(Deps{Store: newStore(t)}))
	for _, p := range []string{"/api/v1/status", "/api/v1/notifications"} {
		if w := do(t, r, http.MethodGet, p, "", nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s -> %d", p, w.Code)
		}
	}
	if w := do(t, r, http.MethodPost, "/api/v1/push", `{}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("push -> %d", w.Code)
	}
}

func TestPush_DeliverAndList(t *testing.T) {
	p := &fakePush{}
	r := newAPI(New(Deps{Store: newStore(t), Push: p, Notifications: p}))

	for i := 0; i < 3; i++ {
		w := do(t, r, http.MethodPost, "/api/v1/push", fmt.Sprintf(`{"title":"t%d"}`, i), nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("push -> %d", w.Code)
		}
	}
	if string(p.got[0]) != `{"title":"t0"}` {
		t.Fatalf("payload not forwarded verbatim: %q", p.got[0])
	}

	w := do(t, r, http.MethodGet, "/api/v1/notifications?limit=2", "", nil)
	list := decode[ListNotificationsResponse](t, w)
	if list.Count != 2 || list.Notifications[0].ID != "n2" || list.Notifications[1].ID != "n3" {
		t.Fatalf("notifications = %+v", list)
	}

	p.err = errors.New("notifier down")
	if w := do(t, r, http.MethodPost, "/api/v1/push", `{}`, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing notifier -> %d", w.Code)
	}
}
