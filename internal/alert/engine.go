// Package alert evaluates per-pid thresholds, executes actions (kill,
// custom command, notify), and enforces cooldowns (design component C8).
package alert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/eventbus"
	"firestige.xyz/otus/internal/log"
)

const maxKillRetriesPerCooldown = 3

// ExecutionRecord is one entry in the custom-command execution log.
type ExecutionRecord struct {
	PID       int
	Timestamp time.Time
	ExitCode  int
	Output    string // truncated
	Err       error
}

const maxOutputLen = 2048

// Engine owns the alert table and the bookkeeping needed to enforce
// cooldowns and the intentionally-killed set.
type Engine struct {
	bus eventbus.EventBus

	mu                sync.Mutex
	alerts            map[int]core.Alert
	lastFired         map[int]time.Time
	killAttempts      map[int]int
	intentionallyKilled map[int]struct{}
	executionLog      []ExecutionRecord
}

// New builds an Engine publishing Notify actions onto bus.
func New(bus eventbus.EventBus) *Engine {
	return &Engine{
		bus:                 bus,
		alerts:              make(map[int]core.Alert),
		lastFired:           make(map[int]time.Time),
		killAttempts:        make(map[int]int),
		intentionallyKilled: make(map[int]struct{}),
	}
}

// SetAlert registers or replaces the alert for a pid.
func (e *Engine) SetAlert(a core.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts[a.PID] = a
}

// RemoveAlert clears the alert for a pid.
func (e *Engine) RemoveAlert(pid int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.alerts, pid)
	delete(e.lastFired, pid)
	delete(e.killAttempts, pid)
}

// Alerts returns a copy of every currently registered alert, keyed by pid,
// for the snapshot builder.
func (e *Engine) Alerts() map[int]core.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]core.Alert, len(e.alerts))
	for pid, a := range e.alerts {
		out[pid] = a
	}
	return out
}

// IsIntentionallyKilled reports whether the engine itself terminated pid,
// so the dead-process pruner does not re-surface it as an anomaly.
func (e *Engine) IsIntentionallyKilled(pid int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.intentionallyKilled[pid]
	return ok
}

// Evaluate checks one process's cumulative bytes against its alert, firing
// the configured action if the threshold is exceeded and the cooldown has
// elapsed (§4.8, P7). Returns true if an action fired.
func (e *Engine) Evaluate(ctx context.Context, ps *core.ProcessStats, now time.Time) bool {
	e.mu.Lock()
	alert, ok := e.alerts[ps.Identity.PID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	total := ps.BytesSent + ps.BytesReceived
	if total <= alert.ThresholdBytes {
		e.mu.Unlock()
		return false
	}
	if last, fired := e.lastFired[ps.Identity.PID]; fired && now.Sub(last) < alert.Cooldown {
		e.mu.Unlock()
		return false
	}
	e.lastFired[ps.Identity.PID] = now
	e.mu.Unlock()

	e.fire(ctx, alert, ps, total)
	return true
}

func (e *Engine) fire(ctx context.Context, alert core.Alert, ps *core.ProcessStats, totalBytes uint64) {
	switch alert.Action.Kind {
	case core.AlertActionKill:
		e.kill(alert.PID)
	case core.AlertActionCustomCommand:
		e.runCustomCommand(ctx, alert, ps, totalBytes)
	case core.AlertActionNotify:
		msg := fmt.Sprintf("pid %d exceeded %d bytes (total %d)", alert.PID, alert.ThresholdBytes, totalBytes)
		if err := eventbus.PublishNotification(e.bus, alert.PID, msg); err != nil {
			if logger := log.GetLogger(); logger != nil {
				logger.WithError(err).Warnf("alert: notify publish failed for pid %d", alert.PID)
			}
		}
	}
}

// kill sends SIGTERM to pid, per §4.8: on success, record the pid in the
// intentionally-killed set; on failure, retry no more than N times per
// cooldown window.
func (e *Engine) kill(pid int) {
	e.mu.Lock()
	attempts := e.killAttempts[pid]
	e.mu.Unlock()

	if attempts >= maxKillRetriesPerCooldown {
		return
	}

	err := unix.Kill(pid, syscall.SIGTERM)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.killAttempts[pid] = attempts + 1
		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warnf("alert: kill failed for pid %d (attempt %d)", pid, attempts+1)
		}
		return
	}

	e.intentionallyKilled[pid] = struct{}{}
	delete(e.killAttempts, pid)
	delete(e.alerts, pid)
}

// runCustomCommand spawns the configured template, substituting
// placeholders {pid}, {name}, {bytes}, and appends the result to the
// execution log.
func (e *Engine) runCustomCommand(ctx context.Context, alert core.Alert, ps *core.ProcessStats, totalBytes uint64) {
	cmdline := substitutePlaceholders(alert.Action.Template, alert.PID, ps.Identity.Name, totalBytes)
	parts := strings.Fields(cmdline)
	record := ExecutionRecord{PID: alert.PID, Timestamp: time.Now()}

	if len(parts) == 0 {
		record.Err = fmt.Errorf("alert: empty custom command template for pid %d", alert.PID)
		e.appendExecutionRecord(record)
		return
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if cmd.ProcessState != nil {
		record.ExitCode = cmd.ProcessState.ExitCode()
	} else {
		record.ExitCode = -1
	}
	record.Output = truncate(out.String(), maxOutputLen)
	record.Err = err

	if err != nil {
		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warnf("alert: custom command failed for pid %d", alert.PID)
		}
	}

	e.appendExecutionRecord(record)
}

func (e *Engine) appendExecutionRecord(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executionLog = append(e.executionLog, record)
}

// ExecutionLog returns a copy of the custom-command execution log.
func (e *Engine) ExecutionLog() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecutionRecord, len(e.executionLog))
	copy(out, e.executionLog)
	return out
}

func substitutePlaceholders(template string, pid int, name string, totalBytes uint64) string {
	r := strings.NewReplacer(
		"{pid}", strconv.Itoa(pid),
		"{name}", name,
		"{bytes}", strconv.FormatUint(totalBytes, 10),
	)
	return r.Replace(template)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
