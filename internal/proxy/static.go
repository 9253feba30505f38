package proxy

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/goodtune/giffly-gateway/internal/route"
)

// handleStatic serves <root>/<suffix> for file rules. Directories are never
// listed.
func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request, rule route.Rule, reqPath string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := "/" + rule.Suffix(reqPath)
	f, err := http.Dir(rule.Root).Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.logger.Debug("file not found", "root", rule.Root, "name", name, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", rule.Cache.Control)
	w.Header().Set("Expires", h.now().Add(rule.Cache.MaxAge).UTC().Format(http.TimeFormat))
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
