package supervisor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/passbooklabs/passbook/internal/observability"
	"github.com/passbooklabs/passbook/pkg/domain"
)

// poolStatus is the /status response.
type poolStatus struct {
	App     string         `json:"app"`
	Class   string         `json:"class"`
	Workers []workerStatus `json:"workers"`
}

type workerStatus struct {
	domain.WorkerStatus
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
}

// ControlHandler serves the operator plane: liveness that only says the
// supervisor is up, readiness that requires at least one serving worker, a
// JSON pool snapshot with per-process resource usage, and the metrics
// registry when one is given.
func (s *Supervisor) ControlHandler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		for _, st := range s.Status() {
			if st.State == domain.StateServing {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ready\n"))
				return
			}
		}
		http.Error(w, "no worker serving", http.StatusServiceUnavailable)
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		out := poolStatus{
			App:     s.cfg.AppRef,
			Class:   s.launcher.Class(),
			Workers: make([]workerStatus, 0, len(s.slots)),
		}
		for _, st := range s.Status() {
			ws := workerStatus{
				WorkerStatus:  st,
				UptimeSeconds: time.Since(st.Since).Seconds(),
			}
			if st.PID > 0 {
				if proc, err := process.NewProcess(int32(st.PID)); err == nil {
					if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
						ws.RSSBytes = mem.RSS
					}
					if cpu, err := proc.CPUPercent(); err == nil {
						ws.CPUPercent = cpu
					}
				}
			}
			out.Workers = append(out.Workers, ws)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			s.log.Warn("encoding status response", "error", err)
		}
	})

	if reg != nil {
		r.Handle("/metrics", observability.Handler(reg))
	}

	return r
}
