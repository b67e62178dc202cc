package handlers

import (
	"net/http"
	"strings"
)

// route binds the allowed methods of one path.
type route map[string]http.HandlerFunc

func (h *Handler) buildRoutes() map[string]route {
	return map[string]route{
		"/upload_ad": {http.MethodPost: h.HandleUpload},
		"/health":    {http.MethodGet: h.HandleHealth, http.MethodHead: h.HandleHealth},
		"/ads":       {http.MethodGet: h.HandleAds},
	}
}

// ServeHTTP dispatches on path, then method. Unknown paths get 404 and
// known paths with the wrong method get 405 with an Allow header.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.routes[r.URL.Path]
	if !ok {
		h.HandleNotFound(w, r)
		return
	}

	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", rt.allow())
		w.WriteHeader(http.StatusOK)
		return
	}

	fn, ok := rt[r.Method]
	if !ok {
		w.Header().Set("Allow", rt.allow())
		h.HandleMethodNotAllowed(w, r)
		return
	}
	fn(w, r)
}

func (rt route) allow() string {
	methods := make([]string, 0, len(rt)+1)
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodPost} {
		if _, ok := rt[m]; ok {
			methods = append(methods, m)
		}
	}
	methods = append(methods, http.MethodOptions)
	return strings.Join(methods, ", ")
}
