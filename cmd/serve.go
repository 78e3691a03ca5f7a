package cmd

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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/logging"
	"github.com/KaramelBytes/retailmind-cli/internal/server"
)

var (
	serveHost     string
	servePort     int
	serveCORS     string
	serveProvider string
	serveModel    string
	serveMaxRows  int
	serveDrain    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (analyze, query, datasets, roles)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := orEmpty(cfg)
		log := logger
		if !debug {
			log = logging.Must(false)
		}
		svc, err := buildService(c, serviceOptions{Provider: serveProvider, Model: serveModel}, log)
		if err != nil {
			return err
		}

		sc := server.Config{
			Host:       c.ServerHost,
			Port:       c.ServerPort,
			CORSOrigin: c.CORSOrigin,
			Load:       dataset.LoadOptions{MaxRows: serveMaxRows},
		}
		f := cmd.Flags()
		if f.Changed("host") || sc.Host == "" {
			sc.Host = serveHost
		}
		if f.Changed("port") || sc.Port == 0 {
			sc.Port = servePort
		}
		if f.Changed("cors-origin") {
			sc.CORSOrigin = serveCORS
		}
		srv := server.NewServer(svc, sc, log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, srv, serveDrain, log)
	},
}

type lifecycle interface {
	Start() error
	Stop(ctx context.Context) error
}

// runServer blocks until ctx is cancelled or the listener fails, then drains
// in-flight requests for up to drain.
func runServer(ctx context.Context, srv lifecycle, drain time.Duration, log *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		return srv.Stop(sctx)
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveCORS, "cors-origin", "", "allowed CORS origin (overrides config)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "answer provider: openrouter | ollama (overrides config)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "answer model (overrides config)")
	serveCmd.Flags().IntVar(&serveMaxRows, "max-rows", 100000, "maximum rows read per upload (0 = unlimited)")
	serveCmd.Flags().DurationVar(&serveDrain, "drain", 10*time.Second, "graceful shutdown timeout")
}
