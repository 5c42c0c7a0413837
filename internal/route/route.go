// Package route turns a validated step list into execution results. Before
// dispatch the list is rewritten so browser-bound commands flow through one
// persistent web context: an app open is promoted to a site open when the
// command continues on the web, and input steps after a web open follow it
// there instead of landing on the desktop.
package route

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
	"motorcortex/internal/resolve"
	"motorcortex/internal/web"
)

// webChainable intents keep a web chain alive when they follow a web
// open_url.
var webChainable = map[string]bool{
	intent.IntentTypeText: true,
	intent.IntentKeyCombo: true,
	intent.IntentClick:    true,
	intent.IntentScroll:   true,
}

var lettersOnlyRe = regexp.MustCompile(`[^a-z]+`)

// WebExecutor is the browser surface the router drives.
type WebExecutor interface {
	ExecuteStep(ctx context.Context, step intent.Step) error
	FlushDeferredOpen(ctx context.Context) error
	LastResolution() *resolve.FallbackResult
}

// OSBackend runs one step natively for the configured client OS.
type OSBackend interface {
	ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult
}

// Router dispatches steps between the OS backends and the web executor.
type Router struct {
	os  OSBackend
	web WebExecutor
}

func New(osBackend OSBackend, webExecutor WebExecutor) *Router {
	return &Router{os: osBackend, web: webExecutor}
}

// Execute rewrites the list and runs it in order. OS backend failures are
// per-step results and execution continues; a web executor error aborts
// the remaining steps and propagates, carrying its code and screenshot for
// the engine to surface. Any navigation still held by the web executor is
// committed on the way out.
func (r *Router) Execute(ctx context.Context, steps []intent.Step) (results []intent.ExecutionResult, err error) {
	rewritten := rewriteChain(steps)

	defer func() {
		if flushErr := r.web.FlushDeferredOpen(ctx); flushErr != nil {
			logging.Router("flush deferred open: %v", flushErr)
		}
	}()

	results = make([]intent.ExecutionResult, 0, len(rewritten))
	for _, step := range rewritten {
		if step.IsWeb() {
			result, webErr := r.executeWebStep(ctx, step)
			if webErr != nil {
				return results, webErr
			}
			results = append(results, result)
			continue
		}
		results = append(results, r.os.ExecuteStep(ctx, step))
	}
	return results, nil
}

func (r *Router) executeWebStep(ctx context.Context, step intent.Step) (intent.ExecutionResult, error) {
	start := time.Now()
	err := r.web.ExecuteStep(ctx, step)
	if err != nil {
		logging.Router("web %s failed: %v", step.Intent, err)
		return intent.ExecutionResult{}, err
	}

	result := intent.ExecutionResult{
		Intent:    step.Intent,
		Status:    intent.StatusOK,
		Target:    intent.TargetWeb,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	// Precomputed URLs never touch the chain, so LastResolution would be
	// stale for them.
	if step.Intent == intent.IntentOpenURL && step.ResolvedURL == "" {
		if res := r.web.LastResolution(); res != nil {
			result.Details = map[string]any{
				"final_url":     res.FinalURL,
				"fallback_used": res.FallbackUsed,
				"attempts_made": res.Attempts,
			}
		}
	}
	return result, nil
}

// Plan returns the step list exactly as Execute would run it, after the
// web-chain rewriting passes, without executing anything.
func Plan(steps []intent.Step) []intent.Step {
	return rewriteChain(steps)
}

// rewriteChain applies the web-chain inference passes:
//
//  1. open_app whose command later touches the web is promoted to a web
//     open_url via the well-known domain table, else a letters-only slug
//     plus ".com".
//  2. After a web open_url, chainable input steps are re-tagged to the web
//     target; wait_for_url inside the chain is dropped (the browser waits
//     natively); any other intent breaks the chain.
//  3. A web open_url immediately followed by a chainable step defers its
//     open so navigation lands in the context that receives the inputs.
func rewriteChain(steps []intent.Step) []intent.Step {
	if len(steps) == 0 {
		return steps
	}

	promoted := make([]intent.Step, len(steps))
	copy(promoted, steps)
	for i := range promoted {
		if promoted[i].Intent != intent.IntentOpenApp || !continuesOnWeb(promoted[i+1:]) {
			continue
		}
		target := promoteAppTarget(promoted[i].App)
		if target == "" {
			continue
		}
		logging.Router("promoted open_app %q to open_url %s", promoted[i].App, target)
		promoted[i] = intent.Step{
			Intent: intent.IntentOpenURL,
			Target: intent.TargetWeb,
			URL:    target,
		}
	}

	out := make([]intent.Step, 0, len(promoted))
	inChain := false
	for _, step := range promoted {
		switch {
		case step.Intent == intent.IntentOpenURL && step.IsWeb():
			inChain = true
		case inChain && step.Intent == intent.IntentWaitForURL:
			logging.RouterDebug("dropped wait_for_url inside web chain")
			continue
		case inChain && webChainable[step.Intent]:
			step.Target = intent.TargetWeb
		default:
			inChain = false
		}
		out = append(out, step)
	}

	for i := 0; i+1 < len(out); i++ {
		if out[i].Intent == intent.IntentOpenURL && out[i].IsWeb() && webChainable[out[i+1].Intent] {
			out[i].DeferOpen = true
		}
	}
	return out
}

// continuesOnWeb reports whether any of the remaining steps is bound for
// the browser.
func continuesOnWeb(rest []intent.Step) bool {
	for _, step := range rest {
		if step.IsWeb() || strings.HasPrefix(step.Intent, "web_") {
			return true
		}
	}
	return false
}

// promoteAppTarget picks the site an app name stands for. Names the domain
// table does not know get a letters-only slug guess; names with no letters
// at all stay unpromoted.
func promoteAppTarget(app string) string {
	name := strings.ToLower(strings.TrimSpace(app))
	if host, ok := resolve.CommonDomains[name]; ok {
		return "https://" + host
	}
	slug := lettersOnlyRe.ReplaceAllString(name, "")
	if slug == "" {
		return ""
	}
	return "https://" + slug + ".com"
}

// IsExecutionError reports whether err carries a structured web execution
// code, unwrapping as needed.
func IsExecutionError(err error) (*web.ExecutionError, bool) {
	var execErr *web.ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}
