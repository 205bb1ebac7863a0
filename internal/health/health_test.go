package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicekit/xttsdeploy/internal/observe"
)

func testConfig() Config {
	return Config{
		MaxAttempts:    5,
		Interval:       10 * time.Millisecond,
		RequestTimeout: 500 * time.Millisecond,
	}
}

func TestVerify_HealthyFirstProbe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewVerifier(nil, observe.Nop{})
	results, healthy, err := v.Verify(context.Background(), srv.URL+"/health", testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
	if len(results) != 1 {
		t.Errorf("probing must stop at the first healthy answer, got %d results", len(results))
	}
	if results[0].Outcome != OutcomeOk || results[0].Status != http.StatusOK {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestVerify_BecomesHealthyMidway(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewVerifier(nil, observe.Nop{})
	results, healthy, err := v.Verify(context.Background(), srv.URL+"/health", testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy after warmup")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results[:2] {
		if r.Outcome != OutcomeUnreachable {
			t.Errorf("warmup probe should be unreachable, got %+v", r)
		}
	}
	if results[2].Outcome != OutcomeOk {
		t.Errorf("final probe should be ok, got %+v", results[2])
	}
}

func TestVerify_NeverHealthyExhaustsAttempts(t *testing.T) {
	t.Parallel()
	v := NewVerifier(nil, observe.Nop{})

	// Reserved TEST-NET address; every probe fails to connect.
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	results, healthy, err := v.Verify(context.Background(), "http://192.0.2.1:8020/health", cfg)
	if err != nil {
		t.Fatalf("exhaustion is not a loop error: %v", err)
	}
	if healthy {
		t.Fatal("expected unhealthy")
	}
	if len(results) != cfg.MaxAttempts {
		t.Fatalf("expected exactly %d results, got %d", cfg.MaxAttempts, len(results))
	}
	for i, r := range results {
		if r.Attempt != i+1 {
			t.Errorf("result %d has attempt %d", i, r.Attempt)
		}
		if r.Outcome == OutcomeOk {
			t.Errorf("probe %d should not be ok", i)
		}
		if r.Err == nil {
			t.Errorf("failed probe %d must carry its error", i)
		}
	}
}

func TestVerify_NonSuccessStatusIsUnhealthy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 2
	v := NewVerifier(nil, observe.Nop{})
	results, healthy, _ := v.Verify(context.Background(), srv.URL+"/health", cfg)
	if healthy {
		t.Fatal("500s are not healthy")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != http.StatusInternalServerError {
		t.Errorf("result should record the status, got %d", results[0].Status)
	}
}

func TestVerify_Cancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.MaxAttempts = 1000
	cfg.Interval = 10 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	v := NewVerifier(nil, observe.Nop{})
	start := time.Now()
	_, healthy, err := v.Verify(ctx, srv.URL+"/health", cfg)
	if err == nil {
		t.Fatal("expected interruption error")
	}
	if healthy {
		t.Fatal("interrupted verification is not healthy")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation not honored promptly")
	}
}

func TestVerify_SlowEndpointTimesOut(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{MaxAttempts: 1, Interval: time.Millisecond, RequestTimeout: 50 * time.Millisecond}
	v := NewVerifier(nil, observe.Nop{})
	results, healthy, err := v.Verify(context.Background(), srv.URL+"/health", cfg)
	if err != nil {
		t.Fatalf("unexpected loop error: %v", err)
	}
	if healthy {
		t.Fatal("a probe that timed out is not healthy")
	}
	if results[0].Outcome != OutcomeTimeout {
		t.Errorf("expected timeout outcome, got %+v", results[0])
	}
}
