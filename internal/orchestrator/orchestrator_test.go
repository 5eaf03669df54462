package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !r.Status().Running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner still busy")
}

func TestStartTaskRejectsConcurrentTask(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	release := make(chan struct{})
	started := make(chan struct{})

	if !r.StartTask("first", func(context.Context) error {
		close(started)
		<-release
		return nil
	}) {
		t.Fatalf("first task rejected")
	}
	<-started

	if r.StartTask("second", func(context.Context) error { return nil }) {
		t.Fatalf("second task accepted while first is running")
	}

	status := r.Status()
	if !status.Running || status.Task != "first" {
		t.Fatalf("unexpected status: %+v", status)
	}

	close(release)
	waitIdle(t, r)

	if !r.StartTask("third", func(context.Context) error { return nil }) {
		t.Fatalf("runner stuck busy after completion")
	}
	waitIdle(t, r)
}

func TestTaskErrorSurfacesInStatus(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	r.StartTask("failing", func(context.Context) error {
		return errors.New("portal unreachable")
	})
	waitIdle(t, r)

	status := r.Status()
	if status.LastError != "portal unreachable" {
		t.Fatalf("unexpected last error: %q", status.LastError)
	}
	if status.Task != "" {
		t.Fatalf("task name not cleared: %q", status.Task)
	}
}

func TestTaskPanicIsRecovered(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	r.StartTask("panicking", func(context.Context) error {
		panic("boom")
	})
	waitIdle(t, r)

	status := r.Status()
	if !strings.Contains(status.LastError, "panic") {
		t.Fatalf("panic not surfaced: %q", status.LastError)
	}
}

func TestLogBufferCaps(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	for i := 0; i < 130; i++ {
		r.AddLog(fmt.Sprintf("line %d", i))
	}

	status := r.Status()
	if len(status.Logs) != surfacedLogs {
		t.Fatalf("expected %d surfaced logs, got %d", surfacedLogs, len(status.Logs))
	}
	if !strings.HasSuffix(status.Logs[len(status.Logs)-1], "line 129") {
		t.Fatalf("newest line missing: %q", status.Logs[len(status.Logs)-1])
	}
	if len(r.logs) != maxStoredLogs {
		t.Fatalf("expected %d stored logs, got %d", maxStoredLogs, len(r.logs))
	}
}

func TestClearLogs(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	r.AddLog("one")
	r.StartTask("failing", func(context.Context) error { return errors.New("x") })
	waitIdle(t, r)

	r.ClearLogs()
	status := r.Status()
	if len(status.Logs) != 0 || status.LastError != "" {
		t.Fatalf("logs not cleared: %+v", status)
	}
}

func TestSetProgress(t *testing.T) {
	t.Parallel()

	r := NewRunner(testLogger())
	r.SetProgress(3, 10)
	status := r.Status()
	if status.Progress != 3 || status.Total != 10 {
		t.Fatalf("unexpected progress: %+v", status)
	}
}
