package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/uptime"
)

// ClientCounter reports connected live subscribers.
type ClientCounter interface {
	ClientCount() int
}

// family accumulates the samples of one metric so HELP and TYPE precede
// them in the output.
type family struct {
	name, help, kind string
	samples          strings.Builder
}

func (f *family) add(labels string, value any) {
	if labels != "" {
		fmt.Fprintf(&f.samples, "%s{%s} %v\n", f.name, labels, value)
		return
	}
	fmt.Fprintf(&f.samples, "%s %v\n", f.name, value)
}

func (f *family) write(w *strings.Builder) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
	w.WriteString(f.samples.String())
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// HandlePrometheusMetrics exports metrics in Prometheus text format
func HandlePrometheusMetrics(st *store.Store, calc *uptime.Calculator, clients ClientCounter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		services, err := st.ListServices(ctx, 0)
		if err != nil {
			logger.Error("metrics: list services", "err", err)
			http.Error(w, "Failed to fetch services", http.StatusInternalServerError)
			return
		}
		latest, err := st.LatestResults(ctx, nil)
		if err != nil {
			logger.Error("metrics: latest results", "err", err)
			http.Error(w, "Failed to fetch results", http.StatusInternalServerError)
			return
		}
		byService := make(map[int64]models.ProbeResult, len(latest))
		for _, res := range latest {
			byService[res.ServiceID] = res
		}

		up := &family{name: "servicewatch_service_up", help: "Service online (1) or not (0) at the last probe", kind: "gauge"}
		status := &family{name: "servicewatch_service_status", help: "Last probe status, one series per status", kind: "gauge"}
		latency := &family{name: "servicewatch_service_response_time_ms", help: "Last probe response time in milliseconds", kind: "gauge"}
		uptimePct := &family{name: "servicewatch_service_uptime_percentage", help: "Service uptime percentage (24h)", kind: "gauge"}
		checks := &family{name: "servicewatch_service_checks", help: "Number of probes (24h)", kind: "gauge"}

		for _, svc := range services {
			labels := fmt.Sprintf(`service_id="%d",service_name="%s"`, svc.ID, labelEscaper.Replace(svc.Name))

			res, probed := byService[svc.ID]
			current := models.StatusUnknown
			if probed {
				current = res.Status
			}
			upValue := 0
			if current == models.StatusOnline {
				upValue = 1
			}
			up.add(labels, upValue)
			for _, s := range []models.Status{models.StatusOnline, models.StatusDegraded, models.StatusOffline, models.StatusUnknown} {
				v := 0
				if s == current {
					v = 1
				}
				status.add(fmt.Sprintf(`%s,status="%s"`, labels, s), v)
			}
			if probed && res.ResponseTimeMs != nil {
				latency.add(labels, *res.ResponseTimeMs)
			}

			stats, err := calc.ForPeriod(ctx, svc.ID, 24*time.Hour)
			if err != nil {
				logger.Warn("metrics: uptime", "service_id", svc.ID, "err", err)
				continue
			}
			uptimePct.add(labels, fmt.Sprintf("%.2f", stats.UptimePercentage))
			checks.add(labels, stats.TotalChecks)
		}

		totalServices := &family{name: "servicewatch_services", help: "Number of registered services", kind: "gauge"}
		totalServices.add("", len(services))

		totalResults := &family{name: "servicewatch_probe_results", help: "Probe results currently stored", kind: "gauge"}
		if n, err := st.CountResults(ctx); err == nil {
			totalResults.add("", n)
		} else {
			logger.Warn("metrics: count results", "err", err)
		}

		families := []*family{up, status, latency, uptimePct, checks, totalServices, totalResults}
		if clients != nil {
			ws := &family{name: "servicewatch_websocket_clients", help: "Connected websocket clients", kind: "gauge"}
			ws.add("", clients.ClientCount())
			families = append(families, ws)
		}
		scrape := &family{name: "servicewatch_scrape_timestamp_seconds", help: "Unix timestamp of this scrape", kind: "gauge"}
		scrape.add("", time.Now().Unix())
		families = append(families, scrape)

		var out strings.Builder
		for _, f := range families {
			f.write(&out)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(out.String()))
	}
}
