// Command mock-core stands in for the mirador-core log API during local development.
// POST /api/v1/rca/logs returns the buffered lines for a service; POST /inject appends one.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

const maxLines = 200

type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
}

type logsRequest struct {
	Service string `json:"service"`
	Limit   int    `json:"limit"`
}

type injectRequest struct {
	Service  string `json:"service"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type logBook struct {
	mu      sync.Mutex
	entries map[string][]logEntry
}

func newLogBook() *logBook {
	return &logBook{entries: map[string][]logEntry{}}
}

func (b *logBook) add(service string, e logEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := append(b.entries[service], e)
	if len(buf) > maxLines {
		buf = buf[len(buf)-maxLines:]
	}
	b.entries[service] = buf
}

func (b *logBook) recent(service string, limit int) []logEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.entries[service]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return append([]logEntry{}, buf...)
}

func newMux(book *logBook) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/rca/logs", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req logsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Service == "" {
			http.Error(w, "service is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"entries": book.recent(req.Service, req.Limit)})
	})

	mux.HandleFunc("/inject", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req injectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Service == "" || req.Message == "" {
			http.Error(w, "service and message are required", http.StatusBadRequest)
			return
		}
		if req.Severity == "" {
			req.Severity = "error"
		}
		book.add(req.Service, logEntry{Timestamp: time.Now().UTC(), Message: req.Message, Severity: req.Severity})
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func main() {
	book := newLogBook()
	for _, svc := range []string{"payment-service", "auth-service", "database"} {
		book.add(svc, logEntry{Timestamp: time.Now().UTC(), Message: "Health check passed", Severity: "info"})
	}

	logger := log.New(log.Writer(), "core-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, newMux(book)),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
