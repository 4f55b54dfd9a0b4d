// Package runtime composes every embeddable-core package (session,
// protocol, transport, tools, resources, adaptive, audit, auth, rbac,
// authz, metrics) into one running MCP server: the library cmd/mcpruntime
// is a thin process wrapper around.
package runtime

import (
	"time"

	"github.com/mcpruntime/core/pkg/adaptive"
	"github.com/mcpruntime/core/pkg/resources"
)

// Transport kinds Config.Transport accepts.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// Authentication modes Config.AuthMode accepts.
const (
	AuthModeAnonymous = "anonymous"
	AuthModeLocal     = "local"
	AuthModePassword  = "password"
	AuthModeBearer    = "bearer"
)

// Authorization backends Config.AuthzBackend accepts.
const (
	AuthzBackendRBAC  = "rbac"
	AuthzBackendCedar = "cedar"
)

// Config is the full set of process-level options enumerated in this
// runtime's external interface: transport framing, session lifecycle,
// authentication, authorization, audit, and resource defaults.
type Config struct {
	// Transport selects the duplex channel variant: TransportStdio wraps
	// os.Stdin/os.Stdout; TransportWebSocket listens on ListenAddr.
	Transport  string
	ListenAddr string
	// Codec names a wire codec, "json" (default) or "cbor"; New rejects
	// any other name. The stdio and websocket transports the Runtime
	// builds are not given this codec and frame messages as JSON.
	Codec string

	MaxFrameBytes     int
	OutboundHighWater int
	IdleTimeout       time.Duration

	AuthMode       string
	BearerSecret   []byte
	BearerIssuer   string
	BearerAudience string
	MaxAuthAttempts int
	AuthRateWindow  time.Duration

	AuthzBackend    string // AuthzBackendRBAC (default) or AuthzBackendCedar
	CedarPolicyPath string

	AuditLogPath         string
	AuditChannelCapacity int

	DefaultResourceLimits resources.Limits
	Adaptive              adaptive.Config

	// RedisAddr, if non-empty, backs session context with a
	// session.RedisSnapshotStore instead of the in-process-only default.
	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	// MetricsAddr, if non-empty, enables the Prometheus metrics handle,
	// which TransportWebSocket also enables whatever this is set to. No
	// listener is opened on MetricsAddr: metrics are served only by
	// Handler, at "/metrics" on the websocket listener.
	MetricsAddr string

	// ResourceMetadataURL is this runtime's externally reachable
	// identifier, used in the RFC 9728 discovery document when AuthMode
	// is AuthModeBearer.
	ResourceMetadataURL string
}

// DefaultConfig returns the runtime's process-level defaults, matching
// the documented baseline: 16 MiB frames, a 1024-message outbound
// high-water mark, a 300s idle timeout, 5 auth attempts per 60s, and a
// 4096-deep audit channel.
func DefaultConfig() Config {
	return Config{
		Transport:            TransportStdio,
		Codec:                "json",
		MaxFrameBytes:        16 * 1024 * 1024,
		OutboundHighWater:    1024,
		IdleTimeout:          300 * time.Second,
		AuthMode:             AuthModeAnonymous,
		MaxAuthAttempts:      5,
		AuthRateWindow:       60 * time.Second,
		AuthzBackend:         AuthzBackendRBAC,
		AuditChannelCapacity: 4096,
		DefaultResourceLimits: resources.DefaultLimits(),
		Adaptive:              adaptive.DefaultConfig(),
	}
}
