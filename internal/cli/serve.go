package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/auth"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/server"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
)

func createServeCmd(version string) *cobra.Command {
	var generateKey bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve deployment history and bytecode checks over HTTP",
		Long: `Start the history API server.

The server exposes recorded deployments under /api/v1/deployments and
compares on-chain code with local artifacts on POST /api/v1/check. When
SERVER_API_KEYS is set, checks require one of those keys.

EXAMPLES:
  # Generate a key for SERVER_API_KEYS
  contraship serve --generate-key

  # Serve on :8080 with the project's sqlite history
  contraship serve
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if generateKey {
				key, err := auth.GenerateAPIKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}
			return runServe(cmd, version)
		},
	}

	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "print a new API key and exit")
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger.Info("starting contraship server", "version", version)

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	} else {
		logger.Warn("deployment history disabled", "storage", cfg.Storage.Type)
	}

	checker := verification.NewChecker(networks.FromConfig(cfg), artifacts.NewResolver(cfg.Project.Root), nil)
	srv := server.New(cfg, store, checker, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
