package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/walletstream/internal/client"
	"github.com/rickgao/walletstream/internal/journal"
	"github.com/rickgao/walletstream/internal/version"
	"github.com/rickgao/walletstream/internal/wire"
)

// pinger checks a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// session is the live client as seen by the status server.
type session interface {
	Instance() *client.Client
}

// newStatusRouter creates the HTTP handler for health and debug endpoints.
// jw and db are nil when the journal is disabled.
func newStatusRouter(s session, jw *journal.Writer, db pinger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		c := s.Instance()
		switch {
		case c == nil:
			health.Status = "unhealthy"
			health.Components["realtime"] = "not initialized"
		case c.IsConnected():
			health.Components["realtime"] = "connected"
		default:
			health.Status = "unhealthy"
			st := c.Stats().Supervisor
			health.Components["realtime"] = map[string]any{
				"status":    "disconnected",
				"attempts":  st.Attempts,
				"exhausted": st.Exhausted,
			}
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["journal"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["journal"] = "connected"
			}
		}

		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}).Methods(http.MethodGet)

	r.HandleFunc("/version", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/channels", func(w http.ResponseWriter, req *http.Request) {
		c := s.Instance()
		if c == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no session"})
			return
		}
		writeJSON(w, http.StatusOK, c.Stats())
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/channels/{topic}", func(w http.ResponseWriter, req *http.Request) {
		c := s.Instance()
		if c == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no session"})
			return
		}
		topic := wire.Topic(strings.ToLower(mux.Vars(req)["topic"]))
		for _, ch := range c.Stats().Supervisor.Channels {
			if ch.Topic == topic {
				writeJSON(w, http.StatusOK, ch)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown topic " + string(topic)})
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/journal", func(w http.ResponseWriter, req *http.Request) {
		if jw == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
			return
		}
		writeJSON(w, http.StatusOK, jw.Stats())
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// splitIDs parses a comma-separated flag value.
func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
