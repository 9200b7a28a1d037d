// Package edge – Worker
//
// Worker is the network edge cache: a service-worker-style interceptor that
// sits in front of the origin serving the application shell. It owns one
// cache generation per manifest version and moves through an explicit
// lifecycle:
//
//	Parsed -> Installing -> Installed -> Activating -> Activated
//
// Install pre-caches every manifest URL or nothing at all (a failed install
// ends in Redundant). Activate evicts every other generation. Once active,
// GET and HEAD requests are answered cache-first with network fallback; a
// failed navigation is answered with the cached offline page and any other
// failed request with a synthetic 408. Before activation every request
// passes straight through to the origin.
//
// Observability: Install/Activate/Resume record OpenTelemetry spans; every
// intercepted request increments edge_requests_total by outcome.
package edge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CacheHeader reports how the edge answered a request (hit|miss|offline).
const CacheHeader = "X-Edge-Cache"

// Reporter receives reachability observations derived from origin fetches.
type Reporter interface {
	Set(online bool)
}

// Options configures a Worker.
type Options struct {
	Origin   *url.URL
	Client   *http.Client // defaults to a client with a 10s timeout
	Storage  *CacheStorage
	Manifest Manifest
	Reporter Reporter // optional
	Notifier Notifier // defaults to a LogNotifier
}

// Worker intercepts requests for the application shell. It is safe for
// concurrent use once constructed.
type Worker struct {
	origin   *url.URL
	client   *http.Client
	cache    *CacheStorage
	manifest Manifest
	reporter Reporter
	notifier Notifier

	mu      sync.RWMutex
	state   State
	serving string // generation answering intercepted requests
}

// New validates opts and returns a Worker in the Parsed state.
func New(opts Options) (*Worker, error) {
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("edge: origin url is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("edge: cache storage is required")
	}
	if err := opts.Manifest.Validate(); err != nil {
		return nil, fmt.Errorf("edge: %w", err)
	}
	w := &Worker{
		origin:   opts.Origin,
		client:   opts.Client,
		cache:    opts.Storage,
		manifest: opts.Manifest,
		reporter: opts.Reporter,
		notifier: opts.Notifier,
		state:    StateParsed,
	}
	if w.client == nil {
		w.client = &http.Client{Timeout: 10 * time.Second}
	}
	if w.notifier == nil {
		w.notifier = NewLogNotifier(100)
	}
	edgeState.Set(float64(StateParsed))
	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Generation returns the cache generation serving requests, or "" before
// activation.
func (w *Worker) Generation() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.serving
}

// Manifest returns the shell manifest the worker installs.
func (w *Worker) Manifest() Manifest { return w.manifest }

// Notifier returns the notifier used for push events.
func (w *Worker) Notifier() Notifier { return w.notifier }

func (w *Worker) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, w.state)
	}
	w.setLocked(to)
	return nil
}

func (w *Worker) set(to State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setLocked(to)
}

func (w *Worker) setLocked(to State) {
	log.Debug().Str("from", w.state.String()).Str("to", to.String()).Msg("edge lifecycle")
	w.state = to
	edgeState.Set(float64(to))
}

// Install fetches every manifest URL and stores the responses in the current
// generation. All fetches must return 200; otherwise nothing is written, the
// worker becomes Redundant and the error wraps ErrCacheInstallFailed.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(StateParsed, StateInstalling); err != nil {
		return err
	}
	name := w.manifest.CacheName()
	ctx, span := otel.Tracer("edge/Worker").Start(ctx, "Install",
		trace.WithAttributes(
			attribute.String("cache.name", name),
			attribute.Int("cache.urls", len(w.manifest.URLs)),
		),
	)
	defer span.End()

	fail := func(err error) error {
		w.set(StateRedundant)
		edgeInstalls.WithLabelValues("failed").Inc()
		span.RecordError(err)
		log.Error().Err(err).Str("cache", name).Msg("edge install failed")
		return err
	}

	entries := make([]Entry, 0, len(w.manifest.URLs))
	for _, path := range w.manifest.URLs {
		e, err := w.fetchShell(ctx, path)
		if err != nil {
			return fail(fmt.Errorf("%w: %s: %w", ErrCacheInstallFailed, path, err))
		}
		entries = append(entries, e)
	}
	if err := w.cache.PutAll(ctx, name, entries); err != nil {
		return fail(fmt.Errorf("%w: store: %w", ErrCacheInstallFailed, err))
	}

	w.set(StateInstalled)
	edgeInstalls.WithLabelValues("ok").Inc()
	log.Info().Str("cache", name).Int("entries", len(entries)).Msg("edge shell installed")
	return nil
}

// Activate evicts every generation other than the current one and starts
// intercepting requests. A failed eviction leaves the worker Installed so
// activation can be retried.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition(StateInstalled, StateActivating); err != nil {
		return err
	}
	name := w.manifest.CacheName()
	ctx, span := otel.Tracer("edge/Worker").Start(ctx, "Activate",
		trace.WithAttributes(attribute.String("cache.name", name)),
	)
	defer span.End()

	keys, err := w.cache.Keys(ctx)
	if err != nil {
		w.set(StateInstalled)
		span.RecordError(err)
		return fmt.Errorf("list cache generations: %w", err)
	}
	for _, k := range keys {
		if k == name {
			continue
		}
		if _, err := w.cache.Delete(ctx, k); err != nil {
			w.set(StateInstalled)
			span.RecordError(err)
			return fmt.Errorf("evict cache generation %s: %w", k, err)
		}
		log.Info().Str("cache", k).Msg("edge evicted stale generation")
	}

	w.mu.Lock()
	w.serving = name
	w.setLocked(StateActivated)
	w.mu.Unlock()
	return nil
}

// Resume activates the newest stored generation of this manifest's prefix
// without installing. It is the recovery path after a failed install: the
// previous shell keeps being served. Allowed from Parsed or Redundant.
func (w *Worker) Resume(ctx context.Context) error {
	ctx, span := otel.Tracer("edge/Worker").Start(ctx, "Resume")
	defer span.End()

	keys, err := w.cache.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list cache generations: %w", err)
	}
	prev := ""
	for _, k := range keys {
		if strings.HasPrefix(k, w.manifest.Prefix+"-") {
			prev = k
			break
		}
	}
	if prev == "" {
		return ErrNoPreviousGeneration
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateParsed && w.state != StateRedundant {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.state, StateActivated)
	}
	w.serving = prev
	w.setLocked(StateActivated)
	span.SetAttributes(attribute.String("cache.name", prev))
	log.Warn().Str("cache", prev).Str("wanted", w.manifest.CacheName()).Msg("edge resumed previous generation")
	return nil
}

// Start runs Install then Activate. When the install fails and an earlier
// generation is stored, that generation is resumed instead and the install
// error is only logged.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		if !errors.Is(err, ErrCacheInstallFailed) {
			return err
		}
		if rerr := w.Resume(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return nil
	}
	return w.Activate(ctx)
}

// ServeHTTP answers an intercepted request. It always writes a response.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	gen, active := w.serving, w.state == StateActivated
	w.mu.RUnlock()

	if !active || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		w.passThrough(rw, r)
		return
	}

	ctx := r.Context()
	key := r.URL.RequestURI()
	e, ok, err := w.cache.Match(ctx, gen, key)
	if err != nil {
		log.Warn().Err(err).Str("url", key).Msg("edge cache lookup failed")
	}
	if ok {
		edgeRequests.WithLabelValues("hit").Inc()
		writeEntry(rw, r, e, "hit")
		return
	}

	resp, body, err := w.forward(r)
	if err != nil {
		w.fallback(rw, r, gen)
		return
	}
	if r.Method == http.MethodGet && w.cacheable(resp) {
		ce := Entry{URL: key, Status: resp.StatusCode, Header: storedHeader(resp.Header), Body: body}
		if err := w.cache.Put(ctx, gen, ce); err != nil {
			log.Warn().Err(err).Str("url", key).Msg("edge cache put failed")
		}
	}
	edgeRequests.WithLabelValues("miss").Inc()
	writeResponse(rw, r, resp.StatusCode, resp.Header, body, "miss")
}

func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request) {
	edgeRequests.WithLabelValues("passthrough").Inc()
	resp, body, err := w.forward(r)
	if err != nil {
		networkError(rw)
		return
	}
	writeResponse(rw, r, resp.StatusCode, resp.Header, body, "")
}

// fallback answers a request whose network fetch failed.
func (w *Worker) fallback(rw http.ResponseWriter, r *http.Request, gen string) {
	if IsNavigation(r) {
		e, ok, err := w.cache.Match(r.Context(), gen, w.manifest.OfflinePage)
		if err == nil && ok {
			edgeRequests.WithLabelValues("offline_page").Inc()
			writeEntry(rw, r, e, "offline")
			return
		}
	}
	networkError(rw)
}

func networkError(rw http.ResponseWriter) {
	edgeRequests.WithLabelValues("network_error").Inc()
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusRequestTimeout)
	_, _ = io.WriteString(rw, "Network error")
}

// IsNavigation reports whether r is a top-level page navigation.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// cacheable reports whether resp is a 200 served by the origin itself.
func (w *Worker) cacheable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return resp.Request != nil && resp.Request.URL.Host == w.origin.Host
}

// forward sends r to the origin and reads the whole body. Network errors are
// reported to the reachability Reporter; a cancelled caller is not.
func (w *Worker) forward(r *http.Request) (*http.Response, []byte, error) {
	target := w.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, nil, err
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	// Let the transport negotiate compression so bodies arrive decoded.
	out.Header.Del("Accept-Encoding")

	resp, err := w.client.Do(out)
	if err != nil {
		w.report(r.Context(), false)
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		w.report(r.Context(), false)
		return nil, nil, err
	}
	w.report(r.Context(), true)
	return resp, body, nil
}

func (w *Worker) report(ctx context.Context, online bool) {
	if w.reporter == nil || ctx.Err() != nil {
		return
	}
	w.reporter.Set(online)
}

// fetchShell downloads one manifest URL for installation.
func (w *Worker) fetchShell(ctx context.Context, path string) (Entry, error) {
	target := w.origin.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Entry{}, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.report(ctx, false)
		return Entry{}, err
	}
	defer resp.Body.Close()
	w.report(ctx, true)
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, err
	}
	return Entry{URL: path, Status: resp.StatusCode, Header: storedHeader(resp.Header), Body: body}, nil
}

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// storedHeader is the subset of response headers kept in the cache.
func storedHeader(h http.Header) http.Header {
	out := h.Clone()
	removeHopHeaders(out)
	out.Del("Content-Length")
	out.Del("Set-Cookie")
	return out
}

func writeEntry(rw http.ResponseWriter, r *http.Request, e *Entry, tag string) {
	writeResponse(rw, r, e.Status, e.Header, e.Body, tag)
}

func writeResponse(rw http.ResponseWriter, r *http.Request, status int, h http.Header, body []byte, tag string) {
	dst := rw.Header()
	for k, vs := range h {
		dst[k] = append([]string(nil), vs...)
	}
	removeHopHeaders(dst)
	dst.Del("Content-Length")
	if tag != "" {
		dst.Set(CacheHeader, tag)
	}
	rw.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = rw.Write(body)
	}
}
