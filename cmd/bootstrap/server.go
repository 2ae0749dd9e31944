package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/metrics"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// statusSource is the part of the orchestrator the status endpoint reads.
type statusSource interface {
	State() bootstrap.State
	Result() *bootstrap.Result
}

type statusResponse struct {
	Network string            `json:"network"`
	State   bootstrap.State   `json:"state"`
	Result  *bootstrap.Result `json:"result,omitempty"`
}

// newRouter serves /metrics, /health, the live run at /status and ledger
// snapshots at /status/{network}.
func newRouter(network string, src statusSource, l ledger.Ledger, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(log))

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Network: network,
			State:   src.State(),
			Result:  src.Result(),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status/{network}", func(w http.ResponseWriter, req *http.Request) {
		snap, err := l.Snapshot(req.Context(), mux.Vars(req)["network"])
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}

// requestLogger logs each request at debug level.
func requestLogger(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			log.WithContext(r.Context()).WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("http request")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// serve runs handler on addr until ctx is done.
func serve(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.WithError(err).Warn("status server shutdown")
		}
	}()

	log.WithField("addr", ln.Addr().String()).Info("status server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
