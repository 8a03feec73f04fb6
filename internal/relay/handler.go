package relay

import (
	"net/http"

	"github.com/roach88/lockstep/internal/transport/ws"
)

// Handler returns an http.Handler that upgrades each request to a websocket
// and serves it as a peer.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := ws.Accept(w, req)
		if err != nil {
			r.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()
		_ = r.Serve(req.Context(), conn)
	})
}
