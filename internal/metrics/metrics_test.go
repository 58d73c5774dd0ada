package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	before := testutil.ToFloat64(childStarts)
	IncStart()
	IncStart()
	if got := testutil.ToFloat64(childStarts) - before; got != 2 {
		t.Fatalf("starts delta = %v", got)
	}
	IncRestart("startup")
	IncRestart("crash")
	IncExit(0)
	IncExit(1)
	IncSpawnFailure()
	ObserveReady(1500 * time.Millisecond)
	SetRunning(true)
	SetRestartCount(2)

	if v := testutil.ToFloat64(childRunning); v != 1 {
		t.Fatalf("running gauge = %v", v)
	}
	if v := testutil.ToFloat64(restartCount); v != 2 {
		t.Fatalf("restart count gauge = %v", v)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"devsup_child_starts_total":          false,
		"devsup_child_restarts_total":        false,
		"devsup_child_exits_total":           false,
		"devsup_child_ready_total":           false,
		"devsup_child_spawn_failures_total":  false,
		"devsup_child_time_to_ready_seconds": false,
		"devsup_child_running":               false,
		"devsup_supervisor_restart_count":    false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", mf.GetName())
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}

	SetRunning(false)
	if v := testutil.ToFloat64(childRunning); v != 0 {
		t.Fatalf("running gauge after stop = %v", v)
	}
}

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	before := testutil.ToFloat64(childReady)
	ObserveReady(time.Second)
	if testutil.ToFloat64(childReady) != before {
		t.Fatalf("helpers must not record before Register")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStart()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "devsup_child_starts_total") {
		t.Fatalf("metrics body missing devsup_child_starts_total")
	}
}
