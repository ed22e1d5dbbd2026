package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StateSource supplies the device state served over HTTP. The registry
// implements it.
type StateSource interface {
	Snapshot() []bluetooth.DeviceSnapshot
	Positions() map[string]bluetooth.Point
}

// NewRouter serves /metrics, and the device endpoints when src is set:
//
//	GET /devices            all snapshots, strongest first
//	GET /devices/{address}  one snapshot
//	GET /positions          last computed position per device
func NewRouter(m *Metrics, src StateSource) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", m.Handler())
	if src == nil {
		return r
	}

	r.Get("/devices", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Snapshot())
	})
	r.Get("/devices/{address}", func(w http.ResponseWriter, req *http.Request) {
		addr := bluetooth.NormalizeAddress(chi.URLParam(req, "address"))
		for _, s := range src.Snapshot() {
			if s.Address == addr {
				writeJSON(w, http.StatusOK, s)
				return
			}
		}
		http.Error(w, "unknown device", http.StatusNotFound)
	})
	r.Get("/positions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Positions())
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logrus.Entry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown")
		}
	}()

	log.WithField("addr", addr).Info("Serving metrics and device state")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}
