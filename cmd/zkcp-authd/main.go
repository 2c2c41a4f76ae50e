package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allsmog/zkcp-go/pkg/api"
	"github.com/allsmog/zkcp-go/pkg/auth"
	"github.com/allsmog/zkcp-go/pkg/config"
	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-go/pkg/logging"
	"github.com/allsmog/zkcp-go/pkg/storage"
	"go.uber.org/zap"
)

func main() {
	// Command line flags
	var (
		configFile   = flag.String("config", "", "YAML config file")
		addr         = flag.String("addr", "", "Server address (overrides config and "+config.EnvListenAddr+")")
		groupName    = flag.String("group", "", "Parameter preset (modp2048|toy)")
		challengeTTL = flag.Duration("challenge-ttl", 0, "Challenge lifetime")
		rateLimit    = flag.Int("rate-limit", -1, "Max requests per minute per client (0 disables)")
		logLevel     = flag.String("log-level", "", "Log level (debug|info|warn|error)")
		logFormat    = flag.String("log-format", "", "Log format (json|console)")
		cors         = flag.Bool("cors", false, "Send permissive CORS headers")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ListenAddr = *addr
		case "group":
			cfg.Group = config.GroupConfig{Preset: *groupName}
		case "challenge-ttl":
			cfg.ChallengeTTL = *challengeTTL
		case "rate-limit":
			cfg.RateLimit = *rateLimit
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "cors":
			cfg.CORS = *cors
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(finish(logger, run(cfg, logger)))
}

// finish logs the outcome of run, flushes the logger and returns the exit
// status
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server failed", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting zkcp auth server")

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	logger.Info("using group",
		zap.String("name", params.Name()),
		zap.Int("bits", params.Modulus().BitLen()),
	)

	// Initialize storage (in-memory)
	credentials := storage.NewMemoryStore[storage.Credential]()
	challenges := storage.NewMemoryStore[storage.Challenge]()

	service := auth.NewService(
		chaumpedersen.New(params),
		credentials,
		challenges,
		auth.Config{ChallengeTTL: cfg.ChallengeTTL},
	)

	handlers := api.NewHandlers(service, logger, api.Config{ServiceName: "zkcp-authd"})
	router := api.NewRouter(handlers, logger, api.RouterConfig{
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.RequestTimeout,
		CORS:           cfg.CORS,
	})
	defer router.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := service.RunJanitor(ctx, cfg.JanitorInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("janitor stopped", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Duration("challenge_ttl", cfg.ChallengeTTL),
			zap.Int("rate_limit", cfg.RateLimit),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	stats := service.Stats()
	logger.Info("server stopped",
		zap.Int("credentials", stats.Credentials),
		zap.Int("challenges", stats.Challenges),
	)
	return nil
}
