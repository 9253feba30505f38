package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goodtune/giffly-gateway/internal/cors"
	"github.com/goodtune/giffly-gateway/internal/metrics"
	"github.com/goodtune/giffly-gateway/internal/realip"
	"github.com/goodtune/giffly-gateway/internal/route"
	"github.com/goodtune/giffly-gateway/internal/rxid"
)

// Hop-by-hop headers that must not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request, rule route.Rule, reqPath string) {
	target := h.table.Upstream(rule.Upstream)

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.Close = false
	outReq.URL.Scheme = target.Scheme
	outReq.URL.Host = target.Host
	outReq.URL.Path = joinPath(target.Path, rule.UpstreamPath(reqPath))
	if outReq.URL.Path != r.URL.Path {
		outReq.URL.RawPath = ""
	}
	if r.ContentLength == 0 {
		outReq.Body = nil
	}

	removeHopByHop(outReq.Header)
	h.setForwardingHeaders(outReq, r, rule.Headers)
	if id := rxid.FromContext(r.Context()); id != "" {
		outReq.Header.Set(rxid.Header, id)
	}
	if _, ok := outReq.Header["User-Agent"]; !ok {
		// Stop the transport adding Go's default agent.
		outReq.Header.Set("User-Agent", "")
	}

	resp, err := h.transport.RoundTrip(outReq)
	if err != nil {
		status, kind := classifyUpstreamError(err)
		h.logger.Error("upstream request failed",
			"error", err,
			"upstream", target.Host,
			"rule", rule.Name,
			"kind", kind,
		)
		metrics.UpstreamErrors.WithLabelValues(target.Host, kind).Inc()
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer resp.Body.Close()

	removeHopByHop(resp.Header)
	cors.Strip(resp.Header)
	// The gateway owns the request ID and the Origin entry in Vary.
	resp.Header.Del(rxid.Header)
	for _, v := range resp.Header.Values("Vary") {
		cors.AddVary(w.Header(), v)
	}
	resp.Header.Del("Vary")
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("copying upstream response", "error", err, "upstream", target.Host)
	}
}

func (h *Handler) setForwardingHeaders(outReq, r *http.Request, policy route.HeaderPolicy) {
	if policy.Host {
		outReq.Host = r.Host
	} else {
		outReq.Host = ""
	}
	if policy.RealIP {
		outReq.Header.Set("X-Real-IP", h.realip.ClientIP(r))
	} else {
		outReq.Header.Del("X-Real-IP")
	}
	if policy.ForwardedFor {
		xff := realip.PeerIP(r)
		if prior := r.Header.Values("X-Forwarded-For"); len(prior) > 0 {
			xff = strings.Join(prior, ", ") + ", " + xff
		}
		outReq.Header.Set("X-Forwarded-For", xff)
	}
	if policy.ForwardedProto {
		outReq.Header.Set("X-Forwarded-Proto", h.realip.Proto(r))
	}
}

// classifyUpstreamError maps a round-trip failure to a gateway status.
func classifyUpstreamError(err error) (int, string) {
	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusBadGateway, "unavailable"
}

func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return p
	}
	return base + p
}
