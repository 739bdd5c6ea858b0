package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldops/fieldsync/internal/devserver"
)

// --- agent ---

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background sync agent (foreground)",
	Long: `Run the background sync agent in the foreground.

The agent polls the remote health endpoint and automatically syncs
whenever connectivity comes back while responses are pending.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		monitor, orch := app.buildSync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStep("Agent running, probing %s every %s", app.cfg.Remote.BaseURL, app.cfg.Sync.ProbeInterval)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			monitor.Run(ctx)
			return nil
		})
		g.Go(func() error {
			orch.RunAuto(ctx, monitor.Events())
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, "agent stopped")
		return nil
	},
}

// --- devserver ---

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory stand-in for the remote service",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		token, _ := cmd.Flags().GetString("token")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := fmt.Sprintf("127.0.0.1:%d", port)
		srv := &http.Server{
			Addr:    addr,
			Handler: devserver.New(token).Handler(),
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stdout, "devserver listening on %s (token %q)\n", addr, token)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stdout, "shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("devserver error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	devserverCmd.Flags().Int("port", 8787, "port to listen on")
	devserverCmd.Flags().String("token", "dev-token", "bearer token the server accepts")
}
