package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "hivemind/pkg/logx"
)

func startServer(t *testing.T, cfg Config, src Sources) (*Service, string) {
	t.Helper()
	s := New(cfg, src, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(sctx)
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return s, "http://" + addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("debug server did not start")
	return nil, ""
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	var stalled atomic.Bool
	_, base := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0"}, Sources{
		Health: func() error {
			if stalled.Load() {
				return errors.New("scheduler stalled")
			}
			return nil
		},
		Gatherer: reg,
		State:    func() any { return map[string]int{"tick": 42} },
	})

	if code, body := get(t, base+"/healthz", ""); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	stalled.Store(true)
	if code, body := get(t, base+"/healthz", ""); code != http.StatusServiceUnavailable || !strings.Contains(body, "stalled") {
		t.Fatalf("/healthz unhealthy = %d %q", code, body)
	}

	code, body := get(t, base+"/metrics", "")
	if code != http.StatusOK || !strings.Contains(body, "hivemind_test_total 1") {
		t.Fatalf("/metrics = %d %q", code, body)
	}

	code, body = get(t, base+"/debug/scheduler", "")
	if code != http.StatusOK {
		t.Fatalf("/debug/scheduler = %d", code)
	}
	var state map[string]int
	if err := json.Unmarshal([]byte(body), &state); err != nil || state["tick"] != 42 {
		t.Fatalf("state = %q (%v)", body, err)
	}

	if code, _ := get(t, base+"/debug/pprof/", ""); code != http.StatusOK {
		t.Fatalf("pprof index = %d", code)
	}
}

func TestTokenRequired(t *testing.T) {
	_, base := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t0k"}, Sources{})

	if code, _ := get(t, base+"/healthz", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", code)
	}
	if code, _ := get(t, base+"/healthz", "t0k"); code != http.StatusOK {
		t.Fatalf("bearer token = %d, want 200", code)
	}
	if code, _ := get(t, base+"/healthz?token=t0k", ""); code != http.StatusOK {
		t.Fatalf("query token = %d, want 200", code)
	}
	if code, _ := get(t, base+"/metrics", "t0k"); code != http.StatusNotFound {
		t.Fatalf("/metrics without gatherer = %d, want 404", code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.2:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
