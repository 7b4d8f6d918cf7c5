package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	backorder "github.com/goliatone/go-backorder"
	"github.com/goliatone/go-backorder/metrics"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func newMux(runtime *backorder.Runtime, recorder *metrics.PrometheusRecorder, db pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/trigger", runtime.HTTPHandler())
	mux.Handle("GET /metrics", recorder.Handler())
	mux.HandleFunc("GET /health", healthHandler(runtime, db))
	return mux
}

type healthResponse struct {
	Status        string `json:"status"`
	PollerRunning bool   `json:"poller_running"`
	Database      string `json:"database"`
}

func healthHandler(runtime *backorder.Runtime, db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Database: "ok", PollerRunning: runtime.Poller().Running()}
		status := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Database = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
