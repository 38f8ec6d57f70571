package batch

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	inputs := make([]string, 25)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("DSC_%04d.NEF", i)
	}

	var active, peak atomic.Int64
	var mu sync.Mutex
	seen := map[string]bool{}
	fn := func(path string) (Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[path] = true
		mu.Unlock()
		return Result{Outputs: 2, Bytes: 10}, nil
	}

	stats, err := Run(Config{Concurrency: 4}, inputs, fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Files != 25 || stats.Failed != 0 || stats.Outputs != 50 || stats.TotalBytes != 250 {
		t.Errorf("stats = %+v", stats)
	}
	if len(seen) != len(inputs) {
		t.Errorf("processed %d distinct inputs, want %d", len(seen), len(inputs))
	}
	if peak.Load() > 4 {
		t.Errorf("peak concurrency %d exceeds 4 workers", peak.Load())
	}
}

func TestRun_Failures(t *testing.T) {
	errBroken := errors.New("broken file")
	inputs := []string{"a.nef", "bad1.nef", "b.nef", "bad2.nef", "c.nef"}
	var out bytes.Buffer
	cfg := Config{Concurrency: 2, Progress: true, Label: "test", Out: &out}

	stats, err := Run(cfg, inputs, func(path string) (Result, error) {
		if strings.HasPrefix(path, "bad") {
			return Result{}, errBroken
		}
		return Result{Outputs: 1, Bytes: 3}, nil
	})
	if err == nil {
		t.Fatal("Run returned no error")
	}
	if !errors.Is(err, errBroken) {
		t.Errorf("error %v does not wrap the worker failure", err)
	}
	for _, name := range []string{"bad1.nef", "bad2.nef"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not mention %s: %v", name, err)
		}
	}
	if stats.Files != 5 || stats.Failed != 2 || stats.Outputs != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if !strings.Contains(out.String(), "5/5 files") || !strings.Contains(out.String(), "2 failed") {
		t.Errorf("progress output %q lacks the final state", out.String())
	}
}

func TestRun_NoInputs(t *testing.T) {
	if _, err := Run(Config{}, nil, func(string) (Result, error) { return Result{}, nil }); err == nil {
		t.Error("Run accepted an empty batch")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{83 * time.Second, "1m23s"},
		{10*time.Minute + 5*time.Second, "10m05s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLimitWorkers(t *testing.T) {
	const gb = 1 << 30
	perFile := FileMemory(4352, 2868, 1)
	// The Go runtime's own footprint comes off the budget, so results are
	// checked against a range.
	tests := []struct {
		name      string
		requested int
		perFile   int64
		ram       uint64
		low, high int
	}{
		{"plenty", 8, perFile, 1024 * gb, 8, 8},
		{"tight", 64, gb, 16 * gb, 1, 12},
		{"starved", 8, 64 * gb, 16 * gb, 1, 1},
		{"unknown cost", 8, 0, gb, 8, 8},
		{"zero requested", 0, perFile, 1024 * gb, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := limitWorkers(tt.requested, tt.perFile, tt.ram, 0.75, false)
			if got < tt.low || got > tt.high {
				t.Errorf("limitWorkers() = %d, want %d..%d", got, tt.low, tt.high)
			}
		})
	}
}
