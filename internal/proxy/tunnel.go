package proxy

import "net/http"

// handleTunnel refuses CONNECT. The gateway only reverse proxies to its own
// upstreams.
func (h *Handler) handleTunnel(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("CONNECT refused", "host", r.Host, "remote_addr", r.RemoteAddr)
	w.Header().Set("Allow", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
