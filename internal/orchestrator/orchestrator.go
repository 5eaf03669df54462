// Package orchestrator serializes long-running pipeline tasks.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	maxStoredLogs  = 100
	surfacedLogs   = 50
	logStampLayout = "15:04:05"
)

// Status is a point-in-time snapshot of the runner.
type Status struct {
	Running   bool     `json:"running"`
	Task      string   `json:"current_task,omitempty"`
	Progress  int      `json:"progress"`
	Total     int      `json:"total"`
	LastError string   `json:"last_error,omitempty"`
	Logs      []string `json:"logs"`
}

// Runner executes at most one task at a time. A second start attempt while a
// task is in flight is rejected rather than queued.
type Runner struct {
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	task      string
	progress  int
	total     int
	lastError string
	logs      []string
}

// NewRunner builds an idle runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// StartTask launches fn in the background under the given task name. It
// returns false without side effects when another task is running.
func (r *Runner) StartTask(name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false
	}
	r.running = true
	r.task = name
	r.progress = 0
	r.total = 0
	r.lastError = ""
	r.mu.Unlock()

	r.AddLog(fmt.Sprintf("Task started: %s", name))
	r.logger.Info("task started", "task", name)

	go r.run(name, fn)
	return true
}

func (r *Runner) run(name string, fn func(ctx context.Context) error) {
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		r.finish(name, err)
	}()

	err = fn(context.Background())
}

func (r *Runner) finish(name string, err error) {
	if err != nil {
		r.AddLog(fmt.Sprintf("Task failed: %s: %v", name, err))
		r.logger.Error("task failed", "task", name, "error", err)
	} else {
		r.AddLog(fmt.Sprintf("Task finished: %s", name))
		r.logger.Info("task finished", "task", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.task = ""
	if err != nil {
		r.lastError = err.Error()
	}
}

// SetProgress updates the completed/total counters shown in status.
func (r *Runner) SetProgress(progress, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = progress
	r.total = total
}

// AddLog appends a timestamped line, trimming the buffer to its cap.
func (r *Runner) AddLog(line string) {
	stamped := fmt.Sprintf("[%s] %s", time.Now().Format(logStampLayout), line)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, stamped)
	if len(r.logs) > maxStoredLogs {
		r.logs = r.logs[len(r.logs)-maxStoredLogs:]
	}
}

// ClearLogs drops the log buffer and the last error.
func (r *Runner) ClearLogs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = nil
	r.lastError = ""
}

// Status returns a snapshot with the most recent log lines.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	logs := r.logs
	if len(logs) > surfacedLogs {
		logs = logs[len(logs)-surfacedLogs:]
	}
	out := make([]string, len(logs))
	copy(out, logs)

	return Status{
		Running:   r.running,
		Task:      r.task,
		Progress:  r.progress,
		Total:     r.total,
		LastError: r.lastError,
		Logs:      out,
	}
}
