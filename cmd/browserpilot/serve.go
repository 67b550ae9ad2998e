package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/entrhq/browserpilot/pkg/adapters/http"
)

const (
	serverSession   = "server"
	shutdownTimeout = 10 * time.Second
)

func serveCommand(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve runs over HTTP",
		Long: `Serve runs over HTTP. Runs share one browser and execute one at a time.

Endpoints:
  POST /v1/runs    run a goal (JSON body with goal, startUrl, maxSteps, ...)
  GET  /v1/events  server-sent progress events
  GET  /healthz    liveness
  GET  /metrics    Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if !cmd.Flags().Changed("headless") {
				headless = true
			}
			driver, err := a.startBrowser(headless)
			if err != nil {
				return err
			}
			runner, err := a.newRunner(driver, serverSession)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: addr,
				Handler: httpadapter.NewHandler(configuredRunner{runner: runner, app: a},
					httpadapter.WithEvents(a.broadcaster),
					httpadapter.WithCollector(a.collector),
					httpadapter.WithSessions(a.manager.ListSessions),
					httpadapter.WithVersion(version),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				fmt.Fprintf(cmd.ErrOrStderr(), "browserpilot listening on http://%s\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				// Closing the broadcaster ends open event streams.
				a.broadcaster.Close()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				return cleanupIdleSessions(gctx, a, a.cfg.Browser.IdleTimeout/2)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8765)")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window")

	return cmd
}

// cleanupIdleSessions closes the browser after it has been idle for the
// configured timeout. The next run starts a new one.
func cleanupIdleSessions(ctx context.Context, a *app, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.manager.CleanupIdleSessions(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
	}
}
