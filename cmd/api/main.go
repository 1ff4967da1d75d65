package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"glrssign/internal/config"
	"glrssign/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := cfg.RequireServer(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer srv.Close()

	httpServer := srv.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	// Live agreement streams end with the process context.
	httpServer.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.RunFeed(gctx)
	})
	g.Go(func() error {
		return srv.RunScheduler(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down gracefully, press Ctrl+C again to force")
		stop()

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Println("Graceful shutdown complete.")
}
