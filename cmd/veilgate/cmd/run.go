package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpadapter "github.com/veilgate/veilgate/internal/adapter/inbound/http"
	"github.com/veilgate/veilgate/internal/adapter/inbound/stdio"
	"github.com/veilgate/veilgate/internal/adapter/inbound/ws"
	"github.com/veilgate/veilgate/internal/adapter/outbound/eventstore"
	"github.com/veilgate/veilgate/internal/adapter/outbound/observability"
	"github.com/veilgate/veilgate/internal/config"
	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/port/inbound"
	"github.com/veilgate/veilgate/internal/service"
)

var (
	devMode       bool
	stdioMode     bool
	statusAddr    string
	mcpServerFlag string
)

var runCmd = &cobra.Command{
	Use:   "run [-- command [args...]]",
	Short: "Run the proxy",
	Long: `Run veilgate between an MCP client and an MCP server.

By default veilgate listens for WebSocket connections on proxy.host:proxy.port
(the reference deployment's transport, one JSON-RPC message per frame). With
--stdio it instead proxies a single connection over its own stdin/stdout,
for use as a local subprocess wrapper.

Examples:
  # Run as a WebSocket server per the config file
  veilgate run

  # Run as a stdio wrapper around a specific MCP server command
  veilgate run --stdio -- npx @modelcontextprotocol/server-filesystem /tmp`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (verbose logging, always-on tracing)")
	runCmd.Flags().BoolVar(&stdioMode, "stdio", false, "proxy a single connection over stdin/stdout instead of listening for WebSocket connections")
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "127.0.0.1:9090", "address for the /health and /metrics endpoints")
	runCmd.Flags().StringVar(&mcpServerFlag, "mcp-server", "", "override proxy.mcp_server_url (an http(s):// URL or a subprocess command line)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if mcpServerFlag != "" {
		cfg.Proxy.MCPServerURL = mcpServerFlag
	} else if len(args) > 0 {
		cfg.Proxy.MCPServerURL = strings.Join(args, " ")
	}
	cfg.SetDefaults(viper.IsSet)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Proxy.MCPServerURL == "" {
		return fmt.Errorf("proxy.mcp_server_url is not configured (set it in the config file, via --mcp-server, or as trailing args)")
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	providers, err := observability.Setup(cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to set up observability: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	store, err := eventstore.Open()
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpadapter.NewMetrics(reg)
	sink := secevent.NewMultiSink(store, httpadapter.NewMetricsSink(metrics))

	coordinator, err := service.NewProxyCoordinator(cfg, sink, observability.SpanTracer{}, logger)
	if err != nil {
		return fmt.Errorf("failed to construct proxy coordinator: %w", err)
	}
	if err := observability.RegisterConnectionGauges(coordinator); err != nil {
		return fmt.Errorf("failed to register metrics gauges: %w", err)
	}

	if cfg.DevMode {
		watchPatternReload(coordinator, logger)
	}

	downstream := service.NewMCPClientFactory(cfg.Proxy)

	var transport inbound.ProxyService
	if stdioMode {
		transport = stdio.NewTransport(coordinator, downstream)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
		transport = ws.NewTransport(addr, coordinator, downstream, logger)
		logger.Info("listening for websocket connections", "addr", addr)
	}

	statusServer := startStatusServer(statusAddr, coordinator, cfg.Proxy.MaxConnections, reg, logger)
	defer statusServer.Close()
	metrics.StartPoller(ctx, coordinator)

	runErr := transport.Start(ctx)
	coordinator.Shutdown()
	providers.Shutdown(context.Background())
	if runErr != nil {
		return runErr
	}

	logger.Info("veilgate stopped")
	return nil
}

func startStatusServer(addr string, coordinator *service.ProxyCoordinator, maxConns int, reg *prometheus.Registry, logger *slog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/health", httpadapter.NewHealthChecker(coordinator, maxConns).Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &stdhttp.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			logger.Warn("status server stopped", "error", err)
		}
	}()
	return server
}

// watchPatternReload enables viper's file watcher and recompiles
// sanitization.patterns.rules into the running coordinator whenever the
// config file changes, without requiring a restart. Scoped to dev mode:
// a production deployment's config is expected to be static.
func watchPatternReload(coordinator *service.ProxyCoordinator, logger *slog.Logger) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		var rules struct {
			Sanitization struct {
				Patterns struct {
					Rules []config.PatternRuleConfig `mapstructure:"rules"`
				} `mapstructure:"patterns"`
			} `mapstructure:"sanitization"`
		}
		if err := viper.Unmarshal(&rules); err != nil {
			logger.Warn("config reload: failed to parse updated rules", "error", err)
			return
		}
		if err := coordinator.ReloadPatternRules(rules.Sanitization.Patterns.Rules); err != nil {
			logger.Warn("config reload: failed to recompile pattern rules", "error", err)
			return
		}
		logger.Info("config reload: sanitization.patterns.rules updated", "count", len(rules.Sanitization.Patterns.Rules))
	})
	viper.WatchConfig()
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
