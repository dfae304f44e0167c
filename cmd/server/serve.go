package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/settlement-engine/internal/events"
)

const shutdownTimeout = 5 * time.Second

// serve runs the HTTP server, the event dispatcher and the WebSocket hub
// until ctx is done. Shutdown runs in order: the server finishes in-flight
// requests, then the dispatcher drains what they queued, then the hub
// closes its clients.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, dispatcher *events.Dispatcher, hub *events.WSHub, log *zap.Logger) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(hubCtx) })
	g.Go(func() error {
		defer stopHub()
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		log.Info("settlement-engine listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down settlement-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopDispatch()
		return err
	})

	return g.Wait()
}
