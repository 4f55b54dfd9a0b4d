package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mcpruntime/core/pkg/adaptive"
	"github.com/mcpruntime/core/pkg/audit"
	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/authz/authorizers"
	"github.com/mcpruntime/core/pkg/authz/authorizers/cedar"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/metrics"
	"github.com/mcpruntime/core/pkg/protocol"
	"github.com/mcpruntime/core/pkg/rbac"
	"github.com/mcpruntime/core/pkg/resources"
	"github.com/mcpruntime/core/pkg/session"
	"github.com/mcpruntime/core/pkg/tools"
	"github.com/mcpruntime/core/pkg/transport"
	"github.com/mcpruntime/core/pkg/wire"

	"github.com/prometheus/client_golang/prometheus"
)

// Runtime is one fully wired MCP server: a session manager, protocol
// engine, tool registry and executor, resource and adaptive-limit
// managers, an authentication verifier, an authorization backend, an
// audit sink, and (optionally) Prometheus metrics and a Redis-backed
// session snapshot store. Construct with New, start its background work
// with Run, and serve sessions with ServeStdio, ServeSession or Handler.
type Runtime struct {
	cfg Config

	auditSink   *audit.Sink
	sessions    *session.Manager
	resourceMgr *resources.Manager
	adaptiveMgr *adaptive.Manager
	toolsReg    *tools.Registry
	toolsEngine *tools.Engine
	rbacEngine  *rbac.Engine
	cedarAuthz  authorizers.Authorizer
	verifier    auth.Verifier
	cmdRegistry *protocol.Registry
	authn       *protocol.Authenticator
	engine      *protocol.Engine
	metrics     *metrics.Metrics
	snapshots   session.SnapshotStore

	invocations *invocationTable

	mu       sync.Mutex
	stopOnce sync.Once
}

// New wires every collaborator described by cfg and registers the
// standard method baseline. The returned Runtime has no sessions yet;
// call ServeSession (or ServeStdio, or serve Handler over HTTP) to start
// serving.
func New(cfg Config) (*Runtime, error) {
	d := DefaultConfig()
	if cfg.Transport == "" {
		cfg.Transport = d.Transport
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = d.MaxFrameBytes
	}
	if cfg.OutboundHighWater <= 0 {
		cfg.OutboundHighWater = d.OutboundHighWater
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = d.AuthMode
	}
	if cfg.MaxAuthAttempts <= 0 {
		cfg.MaxAuthAttempts = d.MaxAuthAttempts
	}
	if cfg.AuthRateWindow <= 0 {
		cfg.AuthRateWindow = d.AuthRateWindow
	}
	if cfg.AuthzBackend == "" {
		cfg.AuthzBackend = d.AuthzBackend
	}
	if cfg.AuditChannelCapacity <= 0 {
		cfg.AuditChannelCapacity = d.AuditChannelCapacity
	}
	if (cfg.DefaultResourceLimits == resources.Limits{}) {
		cfg.DefaultResourceLimits = d.DefaultResourceLimits
	}

	codec, err := wire.CodecForName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	auditCfg := audit.DefaultConfig()
	auditCfg.ChannelCapacity = cfg.AuditChannelCapacity
	auditCfg.Path = cfg.AuditLogPath
	auditSink := audit.NewSink(auditCfg)

	verifier, err := buildVerifier(cfg)
	if err != nil {
		auditSink.Close()
		return nil, err
	}

	rbacEngine := rbac.NewEngine(func(ctx context.Context, action, target, outcome string, meta map[string]string) {
		subjects := map[string]string{}
		if principal, ok := meta["principal"]; ok {
			subjects[audit.SubjectKeyPrincipal] = principal
		}
		event := audit.NewAuditEvent(action, audit.EventSource{Type: audit.SourceTypeInproc, Value: "rbac"}, outcome, subjects, "rbac").
			WithTarget(map[string]string{audit.TargetKeyID: target})
		auditSink.Record(ctx, event)
	})

	var cedarAuthz authorizers.Authorizer
	if cfg.AuthzBackend == AuthzBackendCedar {
		cedarAuthz, err = buildCedarAuthorizer(cfg)
		if err != nil {
			auditSink.Close()
			return nil, err
		}
	}

	resourceMgr := resources.NewManager()
	adaptiveMgr := adaptive.NewManager(resourceMgr, cfg.Adaptive)

	toolsReg := tools.NewRegistry()
	toolsEngine := tools.NewEngine(toolsReg, resourceMgr, toolsAuthorizer(cfg, rbacEngine, cedarAuthz), auditSink)

	sessions := session.NewManager(session.ManagerConfig{IdleTimeout: cfg.IdleTimeout}, auditSink)
	authn := protocol.NewAuthenticator(verifier)
	cmdRegistry := protocol.NewRegistry()
	engine := protocol.NewEngine(cmdRegistry, authn, codec)

	var metricsHandle *metrics.Metrics
	if cfg.MetricsAddr != "" || cfg.Transport == TransportWebSocket {
		metricsHandle = metrics.NewMetrics(prometheus.DefaultRegisterer)
	}

	rt := &Runtime{
		cfg:         cfg,
		auditSink:   auditSink,
		sessions:    sessions,
		resourceMgr: resourceMgr,
		adaptiveMgr: adaptiveMgr,
		toolsReg:    toolsReg,
		toolsEngine: toolsEngine,
		rbacEngine:  rbacEngine,
		cedarAuthz:  cedarAuthz,
		verifier:    verifier,
		cmdRegistry: cmdRegistry,
		authn:       authn,
		engine:      engine,
		metrics:     metricsHandle,
		invocations: newInvocationTable(),
	}
	rt.registerCommands()
	return rt, nil
}

func buildVerifier(cfg Config) (auth.Verifier, error) {
	switch cfg.AuthMode {
	case AuthModeAnonymous:
		return auth.NewAnonymousVerifier(), nil
	case AuthModeLocal:
		return auth.NewLocalVerifier(), nil
	case AuthModePassword:
		store := auth.NewCredentialStore(cfg.MaxAuthAttempts, cfg.AuthRateWindow)
		return auth.NewPasswordVerifier(store), nil
	case AuthModeBearer:
		if len(cfg.BearerSecret) == 0 {
			return nil, fmt.Errorf("runtime: bearer auth requires BearerSecret")
		}
		return auth.NewBearerVerifier(cfg.BearerSecret, cfg.BearerIssuer, cfg.BearerAudience), nil
	default:
		return nil, fmt.Errorf("runtime: unknown auth mode %q", cfg.AuthMode)
	}
}

func buildCedarAuthorizer(cfg Config) (authorizers.Authorizer, error) {
	if cfg.CedarPolicyPath == "" {
		return nil, fmt.Errorf("runtime: cedar authz backend requires CedarPolicyPath")
	}
	authzCfg, err := authorizers.LoadConfig(cfg.CedarPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	cedarCfg, err := cedar.ExtractConfig(authzCfg)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	return cedar.NewCedarAuthorizer(*cedarCfg.Options)
}

// toolsAuthorizer adapts whichever backend cfg selects to the
// tools.Authorizer contract the tool executor calls with
// (principal, "execute", toolID).
func toolsAuthorizer(cfg Config, rbacEngine *rbac.Engine, cedarAuthz authorizers.Authorizer) tools.Authorizer {
	if cfg.AuthzBackend == AuthzBackendCedar && cedarAuthz != nil {
		return tools.AuthorizerFunc(func(ctx context.Context, principal, action, resource string) (bool, error) {
			identityCtx := auth.WithIdentity(ctx, &auth.Identity{Subject: principal})
			return cedarAuthz.AuthorizeWithJWTClaims(identityCtx, authorizers.MCPFeatureTool, authorizers.MCPOperationCall, resource, nil)
		})
	}
	return tools.AuthorizerFunc(func(ctx context.Context, principal, _, resource string) (bool, error) {
		return rbacEngine.Authorize(ctx, principal, "execute", resource) == rbac.Allow, nil
	})
}

// RegisterTool registers tool and initializes its resource tracking
// against the runtime's configured default limits, so an immediate
// execute call has a tracker to acquire against.
func (rt *Runtime) RegisterTool(tool *tools.Tool) error {
	if err := rt.resourceMgr.Initialize(tool.ID, rt.cfg.DefaultResourceLimits); err != nil {
		return err
	}
	return rt.toolsReg.Register(tool)
}

// RBAC returns the role/permission engine backing role.assign,
// role.revoke, and (unless AuthzBackend is cedar) tool.execute
// authorization decisions.
func (rt *Runtime) RBAC() *rbac.Engine { return rt.rbacEngine }

// AuditSink returns the runtime's audit record sink.
func (rt *Runtime) AuditSink() *audit.Sink { return rt.auditSink }

// UseSnapshotStore installs store as the session context persistence
// backend Persist/Resume operate against (e.g. a
// session.RedisSnapshotStore). Passing nil reverts to in-process-only
// snapshotting.
func (rt *Runtime) UseSnapshotStore(store session.SnapshotStore) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.snapshots = store
}

// Run starts the adaptive limit manager's background pass and the
// session manager's idle-eviction sweep, both stopping when ctx is
// cancelled.
func (rt *Runtime) Run(ctx context.Context) {
	go rt.adaptiveMgr.Run(ctx)
	go rt.sessions.Run(ctx)
	<-ctx.Done()
}

// ServeStdio wraps r/w as a stdio transport, accepts it as a single
// session, and serves it until the session closes or ctx is cancelled.
// It is the transport variant a subprocess-managed MCP server uses.
func (rt *Runtime) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) {
	tr := transport.NewStdioTransport(r, w, transport.Config{
		MaxFrameSize:      rt.cfg.MaxFrameBytes,
		OutboundQueueSize: rt.cfg.OutboundHighWater,
	})
	rt.ServeSession(ctx, tr)
}

// ServeSession accepts tr as a new session and drains it until it
// closes or ctx is cancelled, recording the session lifecycle against
// the metrics handle if one is configured.
func (rt *Runtime) ServeSession(ctx context.Context, tr transport.Transport) {
	sess := rt.sessions.Accept(tr)
	if rt.metrics != nil {
		rt.metrics.SessionsActive.Set(float64(rt.sessions.Count()))
	}
	logger.Infow("session accepted", "session_id", sess.ID())

	rt.engine.Serve(ctx, rt.sessions, sess)

	_ = rt.sessions.Close(ctx, sess.ID(), transport.CloseReasonClientDisconnect)
	if rt.metrics != nil {
		rt.metrics.SessionsActive.Set(float64(rt.sessions.Count()))
		rt.metrics.RecordSessionClosed(string(transport.CloseReasonClientDisconnect))
	}
}

// Close stops the audit sink's consumer and releases any configured
// snapshot store, draining buffered audit records first. Safe to call
// once; subsequent calls are no-ops.
func (rt *Runtime) Close() error {
	var err error
	rt.stopOnce.Do(func() {
		err = rt.auditSink.Close()
		rt.mu.Lock()
		store := rt.snapshots
		rt.mu.Unlock()
		if closer, ok := store.(io.Closer); ok {
			if cerr := closer.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
