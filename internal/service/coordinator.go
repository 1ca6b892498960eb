// Package service wires the domain packages into the running proxy: it is
// the composition root that accepts connections, builds a ClientLeg/ServerLeg
// pair for each one, and owns the connection table.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/veilgate/veilgate/internal/adapter/outbound/mcp"
	"github.com/veilgate/veilgate/internal/adapter/outbound/memory"
	"github.com/veilgate/veilgate/internal/config"
	"github.com/veilgate/veilgate/internal/domain/proxy"
	"github.com/veilgate/veilgate/internal/domain/ratelimit"
	"github.com/veilgate/veilgate/internal/domain/sanitize"
	"github.com/veilgate/veilgate/internal/domain/secevent"
	"github.com/veilgate/veilgate/internal/domain/secret"
	"github.com/veilgate/veilgate/internal/domain/validation"
	"github.com/veilgate/veilgate/internal/port/outbound"
)

// ErrMaxConnections is returned by Accept when active connections already
// equal proxy.max_connections. Callers (inbound adapters) should reject the
// incoming transport with close code 1008, per spec §6.
var ErrMaxConnections = errors.New("service: max_connections reached")

// MCPClientFactory constructs the downstream outbound.MCPClient for one
// connection. HandleConnection calls it once per accepted connection, with
// that connection's id, so each gets its own subprocess or HTTP client and
// the client can tag its own logging the same way ClientLeg/ServerLeg do.
type MCPClientFactory = func(connectionID string) (outbound.MCPClient, error)

// connectionSession bundles one connection's ClientLeg/ServerLeg pair so
// Close can tear both down and release vault/counter state together.
type connectionSession struct {
	id        string
	clientLeg *proxy.ClientLeg
	serverLeg *proxy.ServerLeg
}

// ProxyCoordinator is the proxy's composition root: it builds the
// process-wide, read-only sanitization components once from config, then
// mints a ClientLeg/ServerLeg pair scoped to each new connection.
type ProxyCoordinator struct {
	cfg    *config.Config
	logger *slog.Logger
	sink   secevent.Sink

	ansi      *sanitize.AnsiFilter
	whitelist *sanitize.CharacterWhitelist
	patterns  atomic.Pointer[sanitize.PatternMatcher]
	detector  *secret.Detector
	vault     *secret.Vault
	rlEngine  *memory.MemoryRateLimiter
	rlConfig  ratelimit.MultiScopeConfig
	tracer    outbound.Tracer

	counter atomic.Uint64

	mu     sync.Mutex
	active map[string]*connectionSession
	closed bool
}

// NewProxyCoordinator constructs the shared sanitization stack from cfg and
// returns a coordinator ready to accept connections. tracer may be nil, in
// which case sanitize spans are not recorded.
func NewProxyCoordinator(cfg *config.Config, sink secevent.Sink, tracer outbound.Tracer, logger *slog.Logger) (*ProxyCoordinator, error) {
	if tracer == nil {
		tracer = outbound.NopTracer{}
	}
	ansi := sanitize.NewAnsiFilter(cfg.Sanitization.AnsiEscapes.Enabled, sanitize.AnsiAction(cfg.Sanitization.AnsiEscapes.Action))

	whitelist := sanitize.NewCharacterWhitelist(
		cfg.Sanitization.CharacterWhitelist.Enabled,
		toCodePointRanges(cfg.Sanitization.CharacterWhitelist.AllowedRanges),
		toRunes(cfg.Sanitization.CharacterWhitelist.Blacklist),
	)

	ruleConfigs := make([]sanitize.RuleConfig, 0, len(cfg.Sanitization.Patterns.Rules))
	for _, r := range cfg.Sanitization.Patterns.Rules {
		ruleConfigs = append(ruleConfigs, sanitize.RuleConfig{
			Name:     r.Name,
			Pattern:  r.Pattern,
			Action:   sanitize.RuleAction(r.Action),
			Severity: r.Severity,
			When:     r.When,
		})
	}
	patterns, err := sanitize.NewPatternMatcher(ruleConfigs)
	if err != nil {
		return nil, fmt.Errorf("service: constructing pattern matcher: %w", err)
	}

	customPatterns, err := compileCustomPatterns(cfg.APIKeyProtection.Detection.CustomPatterns)
	if err != nil {
		return nil, fmt.Errorf("service: compiling custom secret patterns: %w", err)
	}
	detector := secret.NewDetector(secret.DetectorConfig{
		MinKeyLength:    cfg.APIKeyProtection.Detection.MinimumKeyLength,
		CustomPatterns:  customPatterns,
		DisableBuiltins: !cfg.APIKeyProtection.Detection.BuiltinPatterns,
	})

	vaultKey, err := deriveProcessVaultKey()
	if err != nil {
		return nil, fmt.Errorf("service: deriving vault key: %w", err)
	}
	vaultTTL := parseDurationOr(cfg.APIKeyProtection.Storage.TTL, defaultVaultTTL)
	vault, err := secret.NewVault(secret.VaultConfig{
		EncryptionKey:     vaultKey,
		EncryptionEnabled: cfg.APIKeyProtection.Storage.Encryption,
		MaxKeysPerConn:    cfg.APIKeyProtection.Storage.MaxKeysPerConnection,
		TTL:               vaultTTL,
	}, secevent.VaultAdapter{Sink: sink})
	if err != nil {
		return nil, fmt.Errorf("service: constructing vault: %w", err)
	}
	vault.StartSweep()

	rlEngine := memory.NewRateLimiter()
	rlEngine.StartCleanup(context.Background())

	rlConfig := ratelimit.MultiScopeConfig{
		Enabled: cfg.RateLimiting.Enabled,
		Global: ratelimit.ScopeConfig{
			RequestsPerMinute: cfg.RateLimiting.Global.RequestsPerMinute,
			RequestsPerHour:   cfg.RateLimiting.Global.RequestsPerHour,
		},
		PerClient: ratelimit.ScopeConfig{
			RequestsPerMinute: cfg.RateLimiting.PerClient.RequestsPerMinute,
			RequestsPerHour:   cfg.RateLimiting.PerClient.RequestsPerHour,
		},
		PerMethod: toPerMethodScopes(cfg.RateLimiting.PerMethod),
	}

	coordinator := &ProxyCoordinator{
		cfg:       cfg,
		logger:    logger,
		sink:      sink,
		ansi:      ansi,
		whitelist: whitelist,
		detector:  detector,
		vault:     vault,
		rlEngine:  rlEngine,
		rlConfig:  rlConfig,
		tracer:    tracer,
		active:    make(map[string]*connectionSession),
	}
	coordinator.patterns.Store(patterns)
	return coordinator, nil
}

// ReloadPatternRules recompiles sanitization.patterns.rules and swaps them
// in atomically. Connections already established keep their existing
// Sanitizer's matcher; every new connection accepted after this call sees
// the updated rules. Used by the dev-mode config watcher — spec_full's
// "rule changes take effect for new messages without a restart" is scoped
// to new connections, not a mid-connection hot swap, since Sanitizer holds
// a plain pointer rather than re-reading the coordinator on every message.
func (c *ProxyCoordinator) ReloadPatternRules(rules []config.PatternRuleConfig) error {
	ruleConfigs := make([]sanitize.RuleConfig, 0, len(rules))
	for _, r := range rules {
		ruleConfigs = append(ruleConfigs, sanitize.RuleConfig{
			Name:     r.Name,
			Pattern:  r.Pattern,
			Action:   sanitize.RuleAction(r.Action),
			Severity: r.Severity,
			When:     r.When,
		})
	}
	patterns, err := sanitize.NewPatternMatcher(ruleConfigs)
	if err != nil {
		return fmt.Errorf("service: recompiling pattern matcher: %w", err)
	}
	c.patterns.Store(patterns)
	return nil
}

const defaultVaultTTL = time.Hour

// HandleConnection builds a ClientLeg/ServerLeg pair for one inbound
// connection and runs it to completion. clientIn is the framed byte stream
// from the client (stdin for the stdio transport, a WebSocket-frame reader
// for the ws transport); out is the shared, synchronized writer back to it
// — callers that need to write to the same transport outside this call
// (e.g. the ws adapter's binary-frame rejection) must share this exact
// instance rather than wrapping the raw connection a second time. It
// blocks until the client side closes, ctx is cancelled, or the downstream
// reconnect budget is exhausted.
func (c *ProxyCoordinator) HandleConnection(ctx context.Context, clientIn io.Reader, out *proxy.FramedWriter, downstream MCPClientFactory) error {
	id, err := c.accept()
	if err != nil {
		return err
	}
	defer c.release(id)

	logger := c.logger.With("connection_id", id)

	sanitizer := validation.NewSanitizer(id, validation.Config{
		Ansi:           c.ansi,
		Whitelist:      c.whitelist,
		Patterns:       c.patterns.Load(),
		Detector:       c.detector,
		Vault:          c.vault,
		StrictMode:     c.cfg.Sanitization.StrictMode,
		SecretsEnabled: c.cfg.APIKeyProtection.Enabled,
		Ctx:            ctx,
		Tracer:         c.tracer,
	})

	mcpClient, err := downstream(id)
	if err != nil {
		return fmt.Errorf("service: constructing downstream client: %w", err)
	}

	serverLeg := proxy.NewServerLeg(id, mcpClient, sanitizer, out, c.sink, logger, serverLegConfigFromProxyConfig(c.cfg.Proxy))
	limiter := ratelimit.NewMultiScopeLimiter(c.rlEngine, c.rlConfig)
	clientLeg := proxy.NewClientLeg(id, sanitizer, limiter, c.sink, out, serverLeg, logger)

	c.mu.Lock()
	c.active[id] = &connectionSession{id: id, clientLeg: clientLeg, serverLeg: serverLeg}
	c.mu.Unlock()

	if err := serverLeg.Start(); err != nil {
		logger.Error("starting downstream connection", "error", err)
	}
	defer func() {
		serverLeg.Close()
		c.vault.RemoveAll(id)
	}()

	logger.Info("connection accepted")
	err = clientLeg.Run(ctx, clientIn)
	logger.Info("connection closed", "error", err)
	return err
}

// accept mints a new connection id, rejecting with ErrMaxConnections once
// max_connections active sessions already exist.
func (c *ProxyCoordinator) accept() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrMaxConnections
	}
	max := c.cfg.Proxy.MaxConnections
	if max > 0 && len(c.active) >= max {
		return "", ErrMaxConnections
	}

	n := c.counter.Add(1)
	return fmt.Sprintf("conn-%d", n), nil
}

func (c *ProxyCoordinator) release(id string) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
}

// ActiveConnections returns the number of currently active connections, for
// the health endpoint.
func (c *ProxyCoordinator) ActiveConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// VaultSize returns the number of placeholders currently stored, for metrics.
func (c *ProxyCoordinator) VaultSize() int {
	return c.vault.Size()
}

// TotalAccepted returns the lifetime count of accepted connections, for
// metrics. Monotonic for the life of the process.
func (c *ProxyCoordinator) TotalAccepted() uint64 {
	return c.counter.Load()
}

// Shutdown closes every active connection's downstream leg. The client legs
// observe their transport closing (an adapter-level concern) and exit on
// their own read loops.
func (c *ProxyCoordinator) Shutdown() {
	c.mu.Lock()
	sessions := make([]*connectionSession, 0, len(c.active))
	for _, s := range c.active {
		sessions = append(sessions, s)
	}
	c.closed = true
	c.mu.Unlock()

	for _, s := range sessions {
		s.serverLeg.Close()
	}
	c.vault.Stop()
	c.rlEngine.Stop()
}

// RateLimiterCellsByScope reports the number of tracked rate-limit buckets
// per scope kind (global/client/method), for metrics.
func (c *ProxyCoordinator) RateLimiterCellsByScope() map[string]int {
	return c.rlEngine.CellsByScope()
}

// NewMCPClientFactory returns a downstream-client constructor for
// HandleConnection, chosen from proxy.mcp_server_url per spec §6: an
// "http://" or "https://" URL dials the HTTP transport, anything else is
// treated as a subprocess command line.
func NewMCPClientFactory(cfg config.ProxyConfig) MCPClientFactory {
	return func(connectionID string) (outbound.MCPClient, error) {
		if isHTTPURL(cfg.MCPServerURL) {
			return mcpclient.NewHTTPClient(connectionID, cfg.MCPServerURL), nil
		}
		command, args, err := splitCommandLine(cfg.MCPServerURL)
		if err != nil {
			return nil, err
		}
		return mcpclient.NewStdioClient(connectionID, command, args...), nil
	}
}

func serverLegConfigFromProxyConfig(cfg config.ProxyConfig) proxy.ServerLegConfig {
	defaults := proxy.DefaultServerLegConfig()
	if cfg.MaxQueueSize > 0 {
		defaults.MaxQueueSize = cfg.MaxQueueSize
	}
	if !cfg.AutoReconnect {
		defaults.MaxAttempts = 0
	}
	return defaults
}
