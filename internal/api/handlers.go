package api

import (
	"fmt"
	"net/http"
)

// handleHealth is the minimal liveness probe. The body is a fixed
// contract; orchestration checks match it literally. Richer component
// state lives at /healthz.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "comoe %s\n\n", s.deps.Version)
	fmt.Fprint(w, "Streaming video compression relay.\n\n")
	fmt.Fprint(w, "  GET /compress?url=<source>  transcode the source and stream it back as MP4\n")
	fmt.Fprint(w, "  GET /health                 liveness probe\n")
	fmt.Fprint(w, "  GET /healthz                component health detail\n")
	fmt.Fprint(w, "  GET /readyz                 readiness probe\n")
	fmt.Fprint(w, "  GET /metrics                Prometheus metrics\n")
}
