package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"docqa/internal/llm"
	"docqa/internal/rag"
)

const maxRequestBody = 1 << 20

// Handler returns the HTTP surface of the service.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleHome)
	mux.HandleFunc("GET /debug", a.handleDebug)
	mux.HandleFunc("POST /ingest", a.handleIngest)
	mux.HandleFunc("POST /query", a.handleQuery)

	return a.logRequests(withCORS(mux))
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("✅ docqa server is running!"))
}

func (a *App) handleDebug(w http.ResponseWriter, r *http.Request) {
	st, err := a.Stats(r.Context())
	if err != nil {
		a.logger.ErrorContext(r.Context(), "debug stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":           st.Count,
		"sample_metadata": st.SampleMetadata,
		"file_ids":        st.DocumentIDs,
	})
}

func (a *App) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	a.logger.InfoContext(r.Context(), "📥 ingest request", "file_id", req.FileKey, "file_name", req.FileName)

	res, err := a.IngestURL(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		body := map[string]any{"error": err.Error()}
		if status == http.StatusInternalServerError {
			a.logger.ErrorContext(r.Context(), "❌ ingestion failed", "file_id", req.FileKey, "error", err)
			body["error"] = "Ingestion failed: " + err.Error()

			var ingestErr *rag.IngestError
			if errors.As(err, &ingestErr) {
				body["details"] = map[string]any{
					"chunks_inserted": ingestErr.Inserted,
					"chunks_total":    ingestErr.Total,
					"file_id":         ingestErr.DocumentID,
				}
			}
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "✅ Documents ingested successfully",
		"details": res,
	})
}

type queryRequest struct {
	Query   string `json:"query"`
	FileKey string `json:"file_key"`
	FileID  string `json:"fileId"`
}

func (a *App) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	fileID := req.FileKey
	if fileID == "" {
		fileID = req.FileID
	}

	answer, err := a.Ask(r.Context(), req.Query, fileID)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			a.logger.ErrorContext(r.Context(), "❌ query failed", "file_id", fileID, "error", err)
			var genErr *llm.ServiceError
			if errors.As(err, &genErr) {
				msg = "Generation failed: " + genErr.Error()
			} else {
				msg = "Query failed: " + msg
			}
		}
		writeJSON(w, status, map[string]any{"error": msg})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"response": answer.Text})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		a.logger.Log(r.Context(), level, "request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
