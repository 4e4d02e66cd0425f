package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
)

// maxBodyDrain bounds how much of a response body is read before closing.
const maxBodyDrain = 64 << 10

// HTTPProberOptions configures an HTTPProber.
type HTTPProberOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	SimulatedLoad   bool
	// Transport overrides the default transport. Tests use it to stub targets.
	Transport http.RoundTripper
}

// HTTPProber issues a GET to the service URL and classifies the outcome.
type HTTPProber struct {
	client        *http.Client
	timeout       time.Duration
	simulatedLoad bool
}

// NewHTTPProber creates a prober with the given options
func NewHTTPProber(opts HTTPProberOptions) *HTTPProber {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: opts.Timeout,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}

	// 3xx is classified as online, so redirects are observed rather than followed
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &HTTPProber{
		client:        client,
		timeout:       opts.Timeout,
		simulatedLoad: opts.SimulatedLoad,
	}
}

// Probe performs the HTTP check
func (p *HTTPProber) Probe(ctx context.Context, svc *models.Service) *models.ProbeResult {
	start := time.Now()
	result := &models.ProbeResult{
		ServiceID: svc.ID,
		Status:    models.StatusOffline,
		CheckedAt: start.UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		result.Error = errorString(fmt.Sprintf("failed to create request: %v", err))
		return result
	}
	req.Header.Set("User-Agent", "servicewatch/1.0")

	resp, err := p.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if !isTimeout(err) && elapsed < p.timeout {
			result.ResponseTimeMs = millis(elapsed)
		}
		result.Error = errorString(fmt.Sprintf("request failed: %v", err))
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	result.StatusCode = resp.StatusCode
	result.Status = Classify(resp.StatusCode)
	result.ResponseTimeMs = millis(elapsed)
	if result.Status == models.StatusOffline {
		result.Error = errorString(fmt.Sprintf("server error: HTTP %d", resp.StatusCode))
	}

	if p.simulatedLoad {
		cpu, mem := SimulateLoad(svc.ID, result.CheckedAt, *result.ResponseTimeMs)
		result.CPUUsage = &cpu
		result.MemoryUsage = &mem
		result.LoadSimulated = true
	}

	return result
}

// Classify maps an HTTP status code to a service status: 2xx and 3xx are
// online, 4xx degraded, everything else offline.
func Classify(code int) models.Status {
	switch {
	case code >= 200 && code < 400:
		return models.StatusOnline
	case code >= 400 && code < 500:
		return models.StatusDegraded
	default:
		return models.StatusOffline
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func millis(d time.Duration) *int64 {
	v := d.Milliseconds()
	if v < 0 {
		v = 0
	}
	return &v
}

func errorString(s string) *string { return &s }
