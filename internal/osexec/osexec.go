// Package osexec runs validated steps against the host operating system by
// shelling out to platform tools. Each client OS gets a native backend for
// the intents it handles well; anything a native backend reports as
// unsupported is retried on the generic backend, which leans on portable
// command-line tools and plain HTTP.
package osexec

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
	"motorcortex/internal/sysopen"
)

// Runner executes external commands. The default implementation shells out;
// tests substitute a recorder. It satisfies sysopen.Runner, so one value can
// drive both packages.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

// SystemRunner returns the Runner used outside tests, backed by os/exec.
func SystemRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %s", err, msg)
		}
		return err
	}
	return nil
}

func (execRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg != "" {
				return "", fmt.Errorf("%s: %s", err, msg)
			}
		}
		return "", err
	}
	return string(out), nil
}

// Backend executes OS-level steps for one platform.
type Backend interface {
	Name() string
	Supports(intentName string) bool
	ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult
}

// Dispatcher routes steps to the native backend for the configured client
// OS and retries on the generic backend when the native one cannot handle
// the intent.
type Dispatcher struct {
	primary  Backend
	fallback Backend
}

// NewDispatcher builds the backend pair for the configured client OS.
func NewDispatcher(cfg *config.Config) *Dispatcher {
	return NewDispatcherWithRunner(cfg, execRunner{})
}

// NewDispatcherWithRunner is NewDispatcher with a custom command runner.
func NewDispatcherWithRunner(cfg *config.Config, runner Runner) *Dispatcher {
	clientOS := cfg.ResolvedClientOS()
	opener := sysopen.NewWithRunner(clientOS, runner)

	d := &Dispatcher{fallback: newGeneric(clientOS, runner, opener)}
	switch clientOS {
	case "darwin":
		d.primary = newMacOS(runner, opener)
	case "windows":
		d.primary = newWindows(runner, opener)
	}
	return d
}

// ExecuteStep runs one step on the native backend, falling back to the
// generic backend when the native one reports the intent as unsupported.
// Fallback results carry the name of the backend that declined in
// details["fallback_from"].
func (d *Dispatcher) ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult {
	if d.primary == nil {
		return d.fallback.ExecuteStep(ctx, step)
	}

	result := d.primary.ExecuteStep(ctx, step)
	if result.Status != intent.StatusUnsupported {
		return result
	}

	logging.RouterDebug("backend %s declined %s, retrying on %s",
		d.primary.Name(), step.Intent, d.fallback.Name())
	fallback := d.fallback.ExecuteStep(ctx, step)
	if fallback.Details == nil {
		fallback.Details = map[string]any{}
	}
	fallback.Details["fallback_from"] = d.primary.Name()
	return fallback
}

// SupportedIntents returns the sorted set of intents at least one active
// backend executes natively. The engine feeds this to the interpreter
// prompt.
func (d *Dispatcher) SupportedIntents() []string {
	out := make([]string, 0, 8)
	for _, name := range intent.SupportedIntents() {
		if d.fallback.Supports(name) || (d.primary != nil && d.primary.Supports(name)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func okResult(intentName string, start time.Time) intent.ExecutionResult {
	return intent.ExecutionResult{
		Intent:    intentName,
		Status:    intent.StatusOK,
		Target:    intent.TargetOS,
		ElapsedMS: elapsedMS(start),
	}
}

func okResultDetails(intentName string, details map[string]any, start time.Time) intent.ExecutionResult {
	return intent.ExecutionResult{
		Intent:    intentName,
		Status:    intent.StatusOK,
		Target:    intent.TargetOS,
		Details:   details,
		ElapsedMS: elapsedMS(start),
	}
}

func failedResult(intentName, reason string, start time.Time) intent.ExecutionResult {
	return intent.ExecutionResult{
		Intent:    intentName,
		Status:    intent.StatusFailed,
		Target:    intent.TargetOS,
		Details:   map[string]any{"reason": reason},
		ElapsedMS: elapsedMS(start),
	}
}

func unsupportedResult(intentName, reason string, start time.Time) intent.ExecutionResult {
	return intent.ExecutionResult{
		Intent:    intentName,
		Status:    intent.StatusUnsupported,
		Target:    intent.TargetOS,
		Details:   map[string]any{"reason": reason},
		ElapsedMS: elapsedMS(start),
	}
}
