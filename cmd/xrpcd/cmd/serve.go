package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xrpc-run/xrpcd/internal/adapter/outbound/cel"
	"github.com/xrpc-run/xrpcd/internal/adapter/outbound/memory"
	"github.com/xrpc-run/xrpcd/internal/config"
	"github.com/xrpc-run/xrpcd/internal/dispatch"
	"github.com/xrpc-run/xrpcd/internal/domain/identity"
	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
	"github.com/xrpc-run/xrpcd/internal/telemetry/metrics"
	"github.com/xrpc-run/xrpcd/internal/telemetry/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch server",
	Long: `Start the xrpcd dispatch server: loads the lexicon directory named by
lexicons.dir, wires the configured rate limiter and demo identity store,
and serves the resulting routes over HTTP (and WebSocket, for
subscriptions).

Every loaded method runs the full §4.8 middleware chain before returning
a "not implemented" response; xrpcd is a dispatch engine, not a
preconfigured application — wire real handlers by embedding
internal/dispatch.Dispatcher directly rather than via this CLI.`,
	RunE: runServe,
}

var serveDevMode bool

func init() {
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable development mode (verbose logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveDevMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := tracing.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TracingEnabled, false, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rlStore := memory.NewRateLimiterStore(logger)
	if cfg.RateLimit.Enabled && cfg.RateLimit.CleanupInterval != "" && cfg.RateLimit.MaxTTL != "" {
		cleanupInterval, err := time.ParseDuration(cfg.RateLimit.CleanupInterval)
		if err != nil || cleanupInterval <= 0 {
			return fmt.Errorf("invalid rate_limit.cleanup_interval %q", cfg.RateLimit.CleanupInterval)
		}
		maxTTL, err := time.ParseDuration(cfg.RateLimit.MaxTTL)
		if err != nil {
			return fmt.Errorf("invalid rate_limit.max_ttl: %w", err)
		}
		rlStore = memory.NewRateLimiterStoreWithConfig(cleanupInterval, maxTTL, logger)
		rlStore.StartCleanup(ctx)
	}
	defer rlStore.Stop()

	var globalLimiters []*ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		duration, err := time.ParseDuration(cfg.RateLimit.Duration)
		if err != nil {
			return fmt.Errorf("invalid rate_limit.duration: %w", err)
		}
		globalLimiters = append(globalLimiters, ratelimit.NewLimiter(ratelimit.Config{
			Name:       "global",
			KeyPrefix:  "global",
			Duration:   duration,
			Points:     cfg.RateLimit.Points,
			FailClosed: cfg.RateLimit.FailClosed,
		}, rlStore, logger))
	}

	identityStore := identity.NewStore(cfg.Auth.Identities)

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithGlobalLimiters(globalLimiters...),
		dispatch.WithBlobLimit(cfg.Server.BlobLimitBytes),
	}
	if cfg.RateLimit.BypassExpression != "" {
		bypass, err := buildBypass(cfg.RateLimit.BypassExpression, registry)
		if err != nil {
			return fmt.Errorf("invalid rate_limit.bypass_expression: %w", err)
		}
		opts = append(opts, dispatch.WithGlobalBypass(bypass))
	}

	dispatcher := dispatch.New(registry, lexicon.DefaultValidator{}, opts...)
	registerStubHandlers(dispatcher, registry, identityStore)

	r := chi.NewRouter()
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "RateLimit-Policy"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(metrics.Middleware(m))
	r.Get("/health", healthHandler())
	if cfg.Telemetry.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler(reg))
	}
	r.Mount("/", dispatcher.Router())

	server := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting xrpcd", "addr", cfg.Server.HTTPAddr, "methods", registry.Len())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return shutdownServer(server, cfg.Server.ShutdownTimeout, logger)
	case err := <-errCh:
		return err
	}
}

func shutdownServer(server *http.Server, timeout string, logger *slog.Logger) error {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		d = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error during shutdown", "error", err)
		return err
	}
	logger.Info("xrpcd stopped")
	return nil
}

// buildBypass compiles expression once at boot and returns a
// dispatch.BypassFunc that evaluates it per request. The global tier
// calls this with auth=nil (pre-auth); a nil auth means Authenticated
// is reported false and IdentityDID empty, matching the dispatcher's
// own "global bypass runs before authentication" contract.
func buildBypass(expression string, registry *lexicon.Registry) (dispatch.BypassFunc, error) {
	evaluator, err := cel.NewBypassEvaluator()
	if err != nil {
		return nil, err
	}
	prg, err := evaluator.Compile(expression)
	if err != nil {
		return nil, err
	}
	predicate := evaluator.AsPredicate(prg)

	return func(r *http.Request, auth *dispatch.AuthResult) bool {
		nsid := chi.URLParam(r, "nsid")
		methodKind := ""
		if m, ok := registry.Lookup(nsid); ok {
			methodKind = string(m.Kind)
		}
		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[strings.ToLower(k)] = r.Header.Get(k)
		}
		evalCtx := ratelimit.EvalContext{
			NSID:       nsid,
			MethodKind: methodKind,
			Headers:    headers,
		}
		if auth != nil {
			evalCtx.Authenticated = true
			evalCtx.IdentityDID = auth.DID
		}

		bypass, err := predicate(evalCtx)
		if err != nil {
			return false
		}
		return bypass
	}, nil
}

func buildRegistry(cfg *config.Config, logger *slog.Logger) (*lexicon.Registry, error) {
	if cfg.Lexicons.Dir == "" {
		logger.Warn("no lexicons.dir configured, serving with an empty method registry")
		return lexicon.NewBuilder().Build(), nil
	}
	registry, err := lexicon.LoadDir(os.DirFS(cfg.Lexicons.Dir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicons: %w", err)
	}
	logger.Info("loaded lexicons", "dir", cfg.Lexicons.Dir, "methods", registry.Len())
	return registry, nil
}

// registerStubHandlers wires a not-implemented Handler/Produce for every
// loaded method so the full §4.8 chain (auth, rate limiting, validation)
// is exercisable end-to-end without an embedding application supplying
// real business logic.
func registerStubHandlers(d *dispatch.Dispatcher, registry *lexicon.Registry, identityStore *identity.Store) {
	for _, nsid := range registry.NSIDs() {
		m, _ := registry.Lookup(nsid)
		switch m.Kind {
		case lexicon.KindSubscription:
			d.StreamMethod(nsid, dispatch.StreamConfig{
				Auth:    identityStore.Verifier(),
				Produce: stubProduce,
			})
		default:
			d.Method(nsid, dispatch.MethodConfig{
				Auth:    identityStore.Verifier(),
				Handler: stubHandler,
			})
		}
	}
}

func stubHandler(call *dispatch.Call) (dispatch.Output, error) {
	return dispatch.Output{}, xrpcerror.New(xrpcerror.KindMethodNotImplemented)
}

func stubProduce(ctx context.Context) (<-chan any, <-chan error) {
	errc := make(chan error, 1)
	errc <- xrpcerror.New(xrpcerror.KindMethodNotImplemented)
	close(errc)
	values := make(chan any)
	close(values)
	return values, errc
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
