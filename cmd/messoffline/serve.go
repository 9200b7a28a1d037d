package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-mess-offline/internal/edge"
	httpapi "github.com/tbourn/go-mess-offline/internal/http"
	"github.com/tbourn/go-mess-offline/internal/observability"
	"github.com/tbourn/go-mess-offline/internal/reachability"
	"github.com/tbourn/go-mess-offline/internal/store"
	"github.com/tbourn/go-mess-offline/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (API + edge cache)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shell := shellManifest(cfg)
		shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, observability.BuildInfo{
			Version:   sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
			CacheName: shell.CacheName(),
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown")
			}
		}()

		// A broken record store only disables the API's store endpoints (503);
		// the edge cache keeps serving.
		records := store.New(cfg.RecordsDBPath, store.WithTracing(cfg.OTEL.Enabled))
		defer records.Close()
		if err := records.Init(ctx); err != nil {
			log.Error().Err(err).Str("path", cfg.RecordsDBPath).Msg("record store unavailable")
		}
		idem := httpapi.NewIdempotencyStore(records, cfg.IdempotencyTTL)
		go purgeIdempotency(ctx, idem, time.Hour)

		mon := reachability.New(true)
		cache, err := edge.OpenCacheStorage(cfg.EdgeDBPath, cfg.OTEL.Enabled)
		if err != nil {
			return fmt.Errorf("opening edge cache %s: %w", cfg.EdgeDBPath, err)
		}
		defer cache.Close()

		origin, err := url.Parse(cfg.Edge.OriginURL)
		if err != nil {
			return fmt.Errorf("parsing origin: %w", err)
		}
		worker, err := edge.New(edge.Options{
			Origin:   origin,
			Client:   &http.Client{Timeout: cfg.Edge.UpstreamTimeout},
			Storage:  cache,
			Manifest: shell,
			Reporter: mon,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := worker.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("edge worker inactive; requests pass through to the origin")
			}
		}()

		go mon.Probe(ctx, cfg.Edge.ProbeInterval, reachability.HTTPChecker(&http.Client{Timeout: cfg.Edge.UpstreamTimeout}, cfg.Edge.OriginURL+"/"))
		go announceReplay(ctx, mon, records)

		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, httpapi.Deps{
			Store:        records,
			Idempotency:  idem,
			Worker:       worker,
			Reachability: mon,
		}, cfg)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("addr", srv.Addr).
				Str("origin", cfg.Edge.OriginURL).
				Str("cache", shell.CacheName()).
				Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	},
}

// announceReplay logs the pending queue whenever the origin becomes
// reachable again, the moment clients should start replaying.
func announceReplay(ctx context.Context, mon *reachability.Monitor, s *store.Store) {
	for online := range mon.Subscribe(ctx) {
		if !online {
			continue
		}
		actions, err := s.ListQueuedActions(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("reading queue after reconnect")
			continue
		}
		if len(actions) > 0 {
			log.Info().Int("queued", len(actions)).Msg("origin reachable; queued actions ready for replay")
		}
	}
}

func purgeIdempotency(ctx context.Context, idem *httpapi.IdempotencyStore, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if n, err := idem.Purge(ctx); err != nil {
			log.Debug().Err(err).Msg("idempotency purge skipped")
		} else if n > 0 {
			log.Info().Int64("purged", n).Msg("expired idempotency keys removed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
