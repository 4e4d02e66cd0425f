package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClassify(t *testing.T) {
	cases := []struct {
		code int
		want models.Status
	}{
		{200, models.StatusOnline},
		{204, models.StatusOnline},
		{301, models.StatusOnline},
		{399, models.StatusOnline},
		{400, models.StatusDegraded},
		{404, models.StatusDegraded},
		{499, models.StatusDegraded},
		{500, models.StatusOffline},
		{503, models.StatusOffline},
	}
	for _, tc := range cases {
		if got := Classify(tc.code); got != tc.want {
			t.Fatalf("Classify(%d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestProbeReachableStatuses(t *testing.T) {
	cases := []struct {
		code int
		want models.Status
	}{
		{http.StatusOK, models.StatusOnline},
		{http.StatusFound, models.StatusOnline},
		{http.StatusNotFound, models.StatusDegraded},
		{http.StatusBadGateway, models.StatusOffline},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.code == http.StatusFound {
				w.Header().Set("Location", "/elsewhere")
			}
			w.WriteHeader(tc.code)
		}))

		p := NewHTTPProber(HTTPProberOptions{Timeout: 2 * time.Second})
		r := p.Probe(context.Background(), &models.Service{ID: 1, URL: srv.URL})
		srv.Close()

		if r.Status != tc.want {
			t.Fatalf("code %d: status = %s, want %s", tc.code, r.Status, tc.want)
		}
		if r.StatusCode != tc.code {
			t.Fatalf("code %d: recorded %d (redirect followed?)", tc.code, r.StatusCode)
		}
		if r.ResponseTimeMs == nil || *r.ResponseTimeMs < 0 {
			t.Fatalf("code %d: response time = %v", tc.code, r.ResponseTimeMs)
		}
		if r.CPUUsage != nil || r.MemoryUsage != nil || r.LoadSimulated {
			t.Fatalf("code %d: load reported without simulation enabled", tc.code)
		}
		if tc.want == models.StatusOffline && r.Error == nil {
			t.Fatalf("code %d: expected an error message", tc.code)
		}
	}
}

func TestProbeTimeoutIsOfflineWithoutLatency(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p := NewHTTPProber(HTTPProberOptions{Timeout: 100 * time.Millisecond})
	r := p.Probe(context.Background(), &models.Service{ID: 1, URL: srv.URL})

	if r.Status != models.StatusOffline {
		t.Fatalf("status = %s, want offline", r.Status)
	}
	if r.ResponseTimeMs != nil {
		t.Fatalf("response time = %d, want nil", *r.ResponseTimeMs)
	}
	if r.Error == nil || *r.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestProbeUnresponsiveHost(t *testing.T) {
	hang := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	p := NewHTTPProber(HTTPProberOptions{Timeout: 50 * time.Millisecond, Transport: hang})

	r := p.Probe(context.Background(), &models.Service{ID: 9, URL: "http://down.example"})
	if r.Status != models.StatusOffline || r.ResponseTimeMs != nil {
		t.Fatalf("result = %+v, want offline with nil latency", r)
	}
	if r.Error == nil || !strings.Contains(*r.Error, "request failed") {
		t.Fatalf("error = %v", r.Error)
	}
	if r.ServiceID != 9 || r.CheckedAt.IsZero() {
		t.Fatalf("result not stamped: %+v", r)
	}
}

func TestProbeNetworkErrorKeepsElapsed(t *testing.T) {
	refused := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	p := NewHTTPProber(HTTPProberOptions{Timeout: time.Second, Transport: refused})

	r := p.Probe(context.Background(), &models.Service{ID: 1, URL: "http://refused.example"})
	if r.Status != models.StatusOffline {
		t.Fatalf("status = %s", r.Status)
	}
	if r.ResponseTimeMs == nil {
		t.Fatal("expected elapsed time for a fast failure")
	}
	if r.Error == nil || !strings.Contains(*r.Error, "connection refused") {
		t.Fatalf("error = %v", r.Error)
	}
}

func TestProbeInvalidURL(t *testing.T) {
	p := NewHTTPProber(HTTPProberOptions{Timeout: time.Second})
	r := p.Probe(context.Background(), &models.Service{ID: 1, URL: "http://bad host/"})
	if r.Status != models.StatusOffline || r.Error == nil {
		t.Fatalf("result = %+v", r)
	}
}

func TestProbeSimulatedLoad(t *testing.T) {
	ok := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
	})
	p := NewHTTPProber(HTTPProberOptions{Timeout: time.Second, SimulatedLoad: true, Transport: ok})

	r := p.Probe(context.Background(), &models.Service{ID: 3, URL: "https://ok.example"})
	if !r.LoadSimulated || r.CPUUsage == nil || r.MemoryUsage == nil {
		t.Fatalf("expected simulated load, got %+v", r)
	}
}
