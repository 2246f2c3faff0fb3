package harvest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/presse/harvest/internal/store"
)

// RegisterHTTP mounts the status and control API on a chi router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Stats(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	r.Get("/api/urls", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeJSON(w, 400, map[string]string{"error": "url query parameter required"})
			return
		}
		rec, err := s.store.GetURL(r.Context(), url)
		if err != nil {
			if store.IsNotFound(err) {
				writeJSON(w, 404, map[string]string{"error": "unknown url"})
				return
			}
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, rec)
	})

	r.Get("/api/attempts", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeJSON(w, 400, map[string]string{"error": "url query parameter required"})
			return
		}
		attempts, err := s.store.AttemptsForURL(r.Context(), url, 0)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, attempts)
	})

	r.Post("/api/extract", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL            string `json:"url"`
			Title          string `json:"title"`
			Force          bool   `json:"force"`
			SkipValidation bool   `json:"skip_validation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.URL == "" {
			writeJSON(w, 400, map[string]string{"error": "url is required"})
			return
		}
		res := s.ProcessURL(r.Context(), URLInput{URL: req.URL, Title: req.Title}, Options{
			Force:          req.Force,
			SkipValidation: req.SkipValidation,
		})
		writeJSON(w, 200, res)
	})

	r.Post("/api/sweep", func(w http.ResponseWriter, r *http.Request) {
		removed, err := s.Sweep(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{"removed": len(removed), "patterns": removed})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
