// Package httpapi wires the minimal HTTP surface of SPEC_FULL.md §6: health
// check, Prometheus scrape endpoint, and the websocket upgrade route. Routing
// follows segfal-realtime_whiteboard/go-server/main.go's plain
// http.HandleFunc + manual path-segment parsing style rather than pulling in
// a router library none of the retrieved examples use for this shape of
// service.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/collabtext/realtime-docs/internal/wsapi"
)

// NewMux builds the top-level handler: GET /healthz, GET /metrics, and
// GET /ws/{documentID}.
func NewMux(ws *wsapi.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/", handleWS(ws))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWS expects a path of the form /ws/{documentID}; the session itself
// joins a specific document via the join_document event once connected, so
// documentID here is only checked for presence and is otherwise unused. The
// session id is random.
func handleWS(ws *wsapi.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(segments) < 2 || segments[1] == "" {
			http.Error(w, "missing document id", http.StatusBadRequest)
			return
		}
		ws.ServeHTTP(w, r, newSessionID())
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
