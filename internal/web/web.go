// Package web executes browser-target steps against a persistent Chromium
// context. URLs that leave the process are handed to the system default
// browser through sysopen; the persistent context exists for in-page work
// (typing, key chords, clicks, site adapters) and for deferring a
// navigation until the rest of a command chain has run against it.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
	"motorcortex/internal/resolve"
	"motorcortex/internal/sysopen"
)

const (
	// enterSettleWait gives an in-page enter press time to trigger
	// navigation before the deferred URL is settled.
	enterSettleWait = 1500 * time.Millisecond

	searchProbeTimeout = 8 * time.Second
	screenshotTimeout  = 5 * time.Second
)

// searchPathTemplates is the ladder of site search URLs tried when a
// deferred chain typed a query but pressing enter did not navigate.
var searchPathTemplates = []string{
	"/search?q=",
	"/search?query=",
	"/results?search_query=",
	"/?q=",
}

// Executor owns the persistent browser context and the URL-resolution
// stack. One instance serves the whole process; a mutex serializes entry.
type Executor struct {
	cfg *config.Config

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page

	// missing latches when the browser runtime cannot be launched; from
	// then on only the degraded paths run.
	missing bool

	opener   *sysopen.Opener
	resolver *resolve.Resolver
	chain    *resolve.Chain

	// deferredURL holds a navigation already performed in the persistent
	// context but not yet handed to the system browser. pendingSearch is
	// the last typed text, consumed when the deferral settles.
	deferredURL   string
	pendingSearch string

	// degradedBase stands in for deferredURL when the runtime is missing.
	degradedBase string

	lastResolution *resolve.FallbackResult

	sleep func(time.Duration)
}

// New builds the executor. The browser launches lazily on the first web
// step.
func New(cfg *config.Config) *Executor {
	return &Executor{
		cfg:    cfg,
		opener: sysopen.New(cfg.ResolvedClientOS()),
		sleep:  time.Sleep,
	}
}

// ExecuteStep runs one web-target step. Failures come back as
// *ExecutionError with a stable code; unexpected ones carry a screenshot
// path when a capture succeeded.
func (e *Executor) ExecuteStep(ctx context.Context, step intent.Step) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBrowser(); err != nil {
		return e.executeDegraded(ctx, step)
	}

	err := e.dispatch(ctx, step)
	if err == nil {
		return nil
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	logging.WebError("%s failed unexpectedly: %v", step.Intent, err)
	return &ExecutionError{
		Code:           CodeUnexpected,
		Message:        err.Error(),
		ScreenshotPath: e.saveErrorScreenshot(step.Intent),
	}
}

func (e *Executor) dispatch(ctx context.Context, step intent.Step) error {
	switch step.Intent {
	case intent.IntentOpenURL:
		return e.handleOpenURL(ctx, step)
	case intent.IntentTypeText:
		return e.handleTypeText(ctx, step)
	case intent.IntentKeyCombo:
		return e.handleKeyCombo(ctx, step)
	case intent.IntentClick:
		return e.handleClick(ctx, step)
	case intent.IntentScroll:
		return e.handleScroll(ctx, step)
	case intent.IntentWebSendMessage:
		return e.sendWhatsApp(ctx, step)
	case intent.IntentWebFillForm:
		return e.handleFillForm(ctx, step)
	case "web_request_permission":
		// Reserved. Recorded only; no browser permission API is driven yet.
		logging.Web("permission request recorded")
		return nil
	}
	logging.WebWarn("unknown web intent %q ignored", step.Intent)
	return nil
}

// handleOpenURL resolves and commits a navigation. A precomputed
// resolved_url with no following chain short-circuits to the system
// browser. With a chain, the URL is navigated inside the persistent
// context and held until the chain settles or flushes.
func (e *Executor) handleOpenURL(ctx context.Context, step intent.Step) error {
	finalURL := step.ResolvedURL
	if finalURL != "" && !step.DeferOpen {
		return e.systemOpen(ctx, finalURL)
	}

	if finalURL == "" {
		result := e.fallbackChain().Execute(ctx, step.URL)
		e.lastResolution = &result
		if result.Status == resolve.ChainAllFailed {
			return &ExecutionError{
				Code:    CodeResolutionFailed,
				Message: "failed to resolve url: " + step.URL,
			}
		}
		finalURL = result.FinalURL
	}

	if !sysopen.IsSafeURL(finalURL) {
		return &ExecutionError{
			Code:    CodeUnsafeURL,
			Message: "resolved url rejected: " + finalURL,
		}
	}

	if step.DeferOpen {
		page := e.page.Context(ctx).Timeout(e.cfg.GetBrowserNavTimeout())
		if err := page.Navigate(finalURL); err != nil {
			return err
		}
		_ = page.WaitLoad()
		e.deferredURL = finalURL
		e.pendingSearch = ""
		logging.Web("deferred open held: %s", finalURL)
		return nil
	}
	return e.systemOpen(ctx, finalURL)
}

// settleDeferred commits a held navigation after an in-page enter press:
// prefer the page's new URL if it moved, then a templated site search for
// the pending query, then the originally held URL.
func (e *Executor) settleDeferred(ctx context.Context) error {
	e.sleep(enterSettleWait)

	held := e.deferredURL
	pending := e.pendingSearch
	e.deferredURL = ""
	e.pendingSearch = ""

	if current := e.currentPageURL(); current != "" && current != held {
		logging.Web("deferred chain navigated to %s", current)
		return e.systemOpen(ctx, current)
	}
	if pending != "" {
		if target := e.probeSearchLadder(ctx, held, pending); target != "" {
			return e.systemOpen(ctx, target)
		}
	}
	return e.systemOpen(ctx, held)
}

// probeSearchLadder navigates the persistent page through the search URL
// templates on the held URL's origin and returns the first that loads.
func (e *Executor) probeSearchLadder(ctx context.Context, heldURL, query string) string {
	for _, candidate := range searchLadder(heldURL, query) {
		page := e.page.Context(ctx).Timeout(searchProbeTimeout)
		if err := page.Navigate(candidate); err != nil {
			logging.WebDebug("search probe %s: %v", candidate, err)
			continue
		}
		if err := page.WaitLoad(); err != nil {
			continue
		}
		return candidate
	}
	return ""
}

// searchLadder renders the search templates against a URL's origin.
func searchLadder(rawURL, query string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}
	origin := parsed.Scheme + "://" + parsed.Host
	escaped := url.QueryEscape(query)
	out := make([]string, 0, len(searchPathTemplates))
	for _, tpl := range searchPathTemplates {
		out = append(out, origin+tpl+escaped)
	}
	return out
}

// FlushDeferredOpen commits any still-held navigation by opening the
// current page URL in the system browser. The router calls this exactly
// once after each command's step list.
func (e *Executor) FlushDeferredOpen(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.degradedBase != "" {
		base := e.degradedBase
		e.degradedBase = ""
		e.pendingSearch = ""
		return e.systemOpen(ctx, base)
	}

	if e.deferredURL == "" {
		return nil
	}
	held := e.deferredURL
	e.deferredURL = ""
	e.pendingSearch = ""

	target := held
	if current := e.currentPageURL(); current != "" {
		target = current
	}
	return e.systemOpen(ctx, target)
}

// LastResolution reports metadata from the most recent URL resolution, for
// result enrichment by the router.
func (e *Executor) LastResolution() *resolve.FallbackResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResolution
}

// systemOpen hands a URL to the default browser and maps opener failures
// onto structured codes.
func (e *Executor) systemOpen(ctx context.Context, rawURL string) error {
	err := e.opener.Open(ctx, rawURL)
	if err == nil {
		logging.Web("opened %s in system browser", rawURL)
		return nil
	}
	switch {
	case errors.Is(err, sysopen.ErrUnsafeURL):
		return &ExecutionError{Code: CodeUnsafeURL, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &ExecutionError{Code: CodeOpenTimeout, Message: "timeout opening url: " + rawURL}
	default:
		return &ExecutionError{Code: CodeOpenFailed, Message: err.Error()}
	}
}

// executeDegraded replicates as much of the web flow as possible without a
// controlled browser: precomputed URLs still open, a deferred open + typed
// query + enter synthesizes a site search, everything else fails with
// CodeRuntimeMissing.
func (e *Executor) executeDegraded(ctx context.Context, step intent.Step) error {
	switch step.Intent {
	case intent.IntentOpenURL:
		if step.ResolvedURL != "" && !step.DeferOpen {
			return e.systemOpen(ctx, step.ResolvedURL)
		}
		base := step.ResolvedURL
		if base == "" {
			base = resolve.InferInitialURL(step.URL, e.cfg.Resolver.SearchTemplate)
		}
		if step.DeferOpen {
			e.degradedBase = base
			e.pendingSearch = ""
			logging.Web("degraded: holding %s for chain", base)
			return nil
		}
		return errRuntimeMissing(step.Intent)

	case intent.IntentTypeText:
		if e.degradedBase == "" {
			return errRuntimeMissing(step.Intent)
		}
		e.pendingSearch = step.Text
		return nil

	case intent.IntentKeyCombo:
		if e.degradedBase == "" || !comboHasEnter(step.Keys) {
			return errRuntimeMissing(step.Intent)
		}
		base := e.degradedBase
		pending := e.pendingSearch
		e.degradedBase = ""
		e.pendingSearch = ""
		if pending != "" {
			if target := degradedSearchURL(base, pending); target != "" {
				return e.systemOpen(ctx, target)
			}
		}
		return e.systemOpen(ctx, base)
	}

	return errRuntimeMissing(step.Intent)
}

// degradedSearchURL synthesizes <origin>/search?q=<query> from the held
// base, mirroring the online enter-press behavior.
func degradedSearchURL(baseURL, query string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host + "/search?q=" + url.QueryEscape(query)
}

// fallbackChain lazily builds the resolver and chain; the resolver runs a
// separate headless profile so it never fights the persistent context.
func (e *Executor) fallbackChain() *resolve.Chain {
	if e.chain == nil {
		resolver := resolve.New(e.cfg)
		if e.cfg.Resolver.Warmup {
			if err := resolver.Warmup(); err != nil {
				logging.WebWarn("resolver warm-up failed: %v", err)
			}
		}
		e.resolver = resolver
		e.chain = resolve.NewChain(resolver, e.cfg)
	}
	return e.chain
}

// ensureBrowser launches the persistent context on first use, relaunches
// it when the devtools connection has died, and latches degraded mode when
// the runtime is not available at all. Callers hold e.mu.
func (e *Executor) ensureBrowser() error {
	if e.missing {
		return errRuntimeMissing("web step")
	}
	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return nil
		}
		logging.WebWarn("persistent browser session died, relaunching")
		_ = e.browser.Close()
		e.browser = nil
		e.page = nil
	}

	bin, found := launcher.LookPath()
	if !found {
		e.missing = true
		logging.WebError("no chromium binary found, entering degraded mode")
		return errRuntimeMissing("web step")
	}

	profileDir := e.cfg.BrowserProfileDir()
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		e.missing = true
		return fmt.Errorf("create browser profile dir: %w", err)
	}

	controlURL, err := launcher.New().
		Bin(bin).
		Headless(e.cfg.Browser.Headless).
		UserDataDir(profileDir).
		Launch()
	if err != nil {
		e.missing = true
		logging.WebError("browser launch failed, entering degraded mode: %v", err)
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		e.missing = true
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		e.missing = true
		return fmt.Errorf("open page: %w", err)
	}

	e.browser = browser
	e.page = page
	logging.Web("persistent browser context initialized (headless=%v, profile=%s)",
		e.cfg.Browser.Headless, profileDir)
	return nil
}

func (e *Executor) currentPageURL() string {
	if e.page == nil {
		return ""
	}
	info, err := e.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// saveErrorScreenshot captures the page into the error-screenshot
// directory and returns the path, or "" when capture is impossible.
func (e *Executor) saveErrorScreenshot(intentName string) string {
	if e.page == nil {
		return ""
	}
	dir := e.cfg.ScreenshotDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.WebWarn("screenshot dir: %v", err)
		return ""
	}
	data, err := e.page.Timeout(screenshotTimeout).Screenshot(false, nil)
	if err != nil {
		logging.WebWarn("error screenshot failed: %v", err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", intentName, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.WebWarn("error screenshot write failed: %v", err)
		return ""
	}
	logging.Web("error screenshot saved: %s", path)
	return path
}

// Close tears down the persistent context and the resolver stack.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page != nil {
		_ = e.page.Close()
		e.page = nil
	}
	if e.browser != nil {
		_ = e.browser.Close()
		e.browser = nil
	}
	if e.resolver != nil {
		_ = e.resolver.Close()
		e.resolver = nil
	}
	e.chain = nil
	e.deferredURL = ""
	e.pendingSearch = ""
	e.degradedBase = ""
	e.lastResolution = nil
}
