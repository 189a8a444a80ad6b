package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
)

// StartServer runs a standalone HTTP server exposing /metrics on the given
// port. Intended for the build tool, which has no other HTTP surface.
func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
}
