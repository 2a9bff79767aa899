package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/geoduel/geoduel/go/internal/game/engine"
)

// setupServer exposes the live session snapshot and the action gateway over
// local HTTP for a UI overlay. The overlay reads state and issues intents;
// it never mutates session state directly.
func setupServer(eng *engine.Engine, port string) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerSessionRoutes(mux, eng)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerSessionRoutes(mux *http.ServeMux, eng *engine.Engine) {
	mux.HandleFunc("/api/session/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, eng.Snapshot())
	})

	mux.HandleFunc("/api/session/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := eng.JoinMatchmaking(r.Context()); err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, eng.Snapshot())
	})

	mux.HandleFunc("/api/session/leave", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := eng.LeaveMatchmaking(r.Context()); err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, eng.Snapshot())
	})

	mux.HandleFunc("/api/session/guess", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := eng.SubmitGuess(r.Context(), body.X, body.Y); err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, eng.Snapshot())
	})

	mux.HandleFunc("/api/session/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := eng.SyncMatchStatus(r.Context()); err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, eng.Snapshot())
	})
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeActionError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
