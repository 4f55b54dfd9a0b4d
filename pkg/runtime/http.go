package runtime

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/transport"
)

// Handler builds the runtime's HTTP surface for TransportWebSocket mode:
// a session upgrade endpoint at "/", Prometheus metrics at "/metrics" if
// a metrics handle is configured, and the RFC 9728 protected-resource
// document at auth.WellKnownOAuthResourcePath if AuthMode is
// AuthModeBearer and ResourceMetadataURL is set.
func (rt *Runtime) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	upgrader := transport.Upgrader(0, 0)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnw("websocket upgrade failed", "error", err.Error())
			return
		}
		tr := transport.NewWebSocketTransport(conn, transport.Config{
			MaxFrameSize:      rt.cfg.MaxFrameBytes,
			OutboundQueueSize: rt.cfg.OutboundHighWater,
		})
		go rt.ServeSession(ctx, tr)
	})

	if rt.metrics != nil {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if rt.cfg.AuthMode == AuthModeBearer && rt.cfg.ResourceMetadataURL != "" {
		mux.Handle(auth.WellKnownOAuthResourcePath, auth.NewWellKnownHandler(auth.ResourceMetadata{
			Resource:      rt.cfg.ResourceMetadataURL,
			BearerMethods: []string{"header"},
		}))
	}

	return mux
}
