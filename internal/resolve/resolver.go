// Package resolve turns fuzzy queries like "youtube cats" into concrete URLs.
// A headless browser loads the most likely page, scans its links, and ranks
// them against the query. Results are cached and a fallback chain covers the
// cases where DOM search comes up empty.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"motorcortex/internal/config"
	"motorcortex/internal/logging"
)

// Resolution statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

const (
	maxScanLinks  = 100
	maxLoginLinks = 150
	maxCandidates = 20
)

// ErrBrowserUnavailable reports that no Chromium binary could be found for
// the headless resolver. Callers treat this as degraded mode and fall back
// to heuristics that do not need a live DOM.
var ErrBrowserUnavailable = errors.New("resolver browser unavailable: no chromium binary found")

// Result captures one resolution attempt. Failed attempts carry an error
// message and are cached just like successes.
type Result struct {
	Status      string `json:"status"`
	ResolvedURL string `json:"resolved_url,omitempty"`
	Query       string `json:"search_query"`
	Candidates  int    `json:"candidates_found"`
	Reason      string `json:"selected_reason,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Error       string `json:"error_message,omitempty"`
	FromCache   bool   `json:"from_cache,omitempty"`
}

type scannedLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
	Aria string `json:"aria"`
}

type linkCandidate struct {
	URL           string
	Text          string
	AriaLabel     string
	PositionScore float64
}

// Resolver owns a persistent headless browser page used for DOM search.
// The page is reused across resolutions so only the first query pays the
// launch cost, and the profile is separate from the visible automation
// browser so resolver traffic never touches user sessions.
type Resolver struct {
	cfg *config.Config

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page

	cache *Cache
}

// New builds a resolver around cfg. The browser is launched lazily on the
// first resolution; call Warmup to pay that cost during startup instead.
func New(cfg *config.Config) *Resolver {
	return &Resolver{
		cfg:   cfg,
		cache: NewCache(cfg.Resolver.CacheSize, cfg.GetCacheTTL()),
	}
}

// Cache exposes the resolution cache, mainly for CLI inspection and tests.
func (r *Resolver) Cache() *Cache { return r.cache }

// Warmup eagerly launches the headless browser so the first resolution does
// not absorb the one to three second startup cost.
func (r *Resolver) Warmup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureBrowser(); err != nil {
		return err
	}
	logging.Resolver("browser warm-up completed")
	return nil
}

// Resolve turns a query into a concrete URL. Every outcome, including
// failures and timeouts, is cached so repeated queries stay cheap.
func (r *Resolver) Resolve(ctx context.Context, query string) Result {
	start := time.Now()

	if hit, ok := r.cache.Get(query); ok {
		hit.FromCache = true
		logging.ResolverDebug("cache hit for %q", query)
		return hit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.resolveLocked(ctx, query, start)
	r.cache.Put(query, res)
	return res
}

func (r *Resolver) resolveLocked(ctx context.Context, query string, start time.Time) Result {
	if err := r.ensureBrowser(); err != nil {
		logging.ResolverError("browser unavailable: %v", err)
		return Result{
			Status:    StatusFailed,
			Query:     query,
			ElapsedMS: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}
	}

	initialURL := InferInitialURL(query, r.cfg.Resolver.SearchTemplate)
	probeURL := initialURL
	login := isLoginQuery(query)
	if login {
		probeURL = loginBaseURL(initialURL)
	}
	logging.ResolverDebug("resolving %q starting at %s", query, probeURL)

	timeout := r.cfg.GetResolverNavTimeout()
	page := r.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(probeURL); err != nil {
		return failure(query, start, err)
	}
	if err := page.WaitLoad(); err != nil {
		return failure(query, start, err)
	}
	// Best effort: pages with long-polling never go idle.
	_ = page.WaitIdle(timeout)

	base := pageURL(page)

	var (
		candidates []linkCandidate
		best       *linkCandidate
	)
	if login {
		// Account menus rendered by script need a moment to attach.
		time.Sleep(1500 * time.Millisecond)
		candidates = loginCandidates(r.scanLinks(page, maxLoginLinks), base)
		best = rankLoginCandidates(candidates)
		if best == nil {
			logging.ResolverDebug("login link search empty, trying network probe on %s", probeURL)
			if networkURL := r.loginURLFromNetwork(ctx, page, probeURL); networkURL != "" {
				best = &linkCandidate{URL: networkURL, Text: "login_network", PositionScore: 1.0}
			}
		}
	}
	if best == nil {
		candidates = queryCandidates(r.scanLinks(page, maxScanLinks), base, query)
		best = rankCandidates(candidates, query)
	}
	logging.ResolverDebug("found %d candidates for %q", len(candidates), query)

	elapsed := time.Since(start).Milliseconds()
	if best == nil {
		return Result{
			Status:     StatusFailed,
			Query:      query,
			Candidates: len(candidates),
			ElapsedMS:  elapsed,
			Error:      "no matching links found",
		}
	}
	return Result{
		Status:      StatusOK,
		ResolvedURL: best.URL,
		Query:       query,
		Candidates:  len(candidates),
		Reason:      "text_match",
		ElapsedMS:   elapsed,
	}
}

// Close shuts down the headless browser. The resolver relaunches it on the
// next Resolve call.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.page != nil {
		_ = r.page.Close()
		r.page = nil
	}
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	return err
}

// ensureBrowser launches the headless browser on first use and relaunches
// it if the devtools connection has gone stale. Callers hold r.mu.
func (r *Resolver) ensureBrowser() error {
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		logging.ResolverWarn("stale browser connection detected, relaunching")
		_ = r.browser.Close()
		r.browser = nil
		r.page = nil
	}

	bin, found := launcher.LookPath()
	if !found {
		return ErrBrowserUnavailable
	}

	profileDir := r.cfg.ResolverProfileDir()
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return fmt.Errorf("create resolver profile dir: %w", err)
	}

	controlURL, err := launcher.New().
		Bin(bin).
		Headless(r.cfg.Resolver.Headless).
		UserDataDir(profileDir).
		Launch()
	if err != nil {
		return fmt.Errorf("launch resolver browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect resolver browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open resolver page: %w", err)
	}

	r.browser = browser
	r.page = page
	logging.Resolver("headless browser ready (profile=%s)", profileDir)
	return nil
}

func failure(query string, start time.Time, err error) Result {
	status := StatusFailed
	msg := fmt.Sprintf("browser error: %v", err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = StatusTimeout
		msg = fmt.Sprintf("navigation timeout: %v", err)
	}
	return Result{
		Status:    status,
		Query:     query,
		ElapsedMS: time.Since(start).Milliseconds(),
		Error:     msg,
	}
}

const linkScanJS = `(limit) => {
	const anchors = document.querySelectorAll('a[href]');
	const max = Math.min(anchors.length, limit);
	const out = [];
	for (let i = 0; i < max; i++) {
		const a = anchors[i];
		out.push({
			href: a.getAttribute('href') || '',
			text: (a.innerText || '').trim(),
			aria: a.getAttribute('aria-label') || '',
		});
	}
	return out;
}`

// scanLinks pulls the first limit anchors out of the page in one round trip.
func (r *Resolver) scanLinks(page *rod.Page, limit int) []scannedLink {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           linkScanJS,
		JSArgs:       []interface{}{limit},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		logging.ResolverDebug("link scan failed: %v", err)
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var links []scannedLink
	if err := json.Unmarshal(raw, &links); err != nil {
		logging.ResolverDebug("decode link scan: %v", err)
		return nil
	}
	return links
}

func pageURL(page *rod.Page) *url.URL {
	info, err := page.Info()
	if err != nil {
		return nil
	}
	parsed, err := url.Parse(info.URL)
	if err != nil {
		return nil
	}
	return parsed
}

// collectCandidates filters scanned links and assigns position scores.
// Earlier links score higher, on the theory that prominent links come first
// in the DOM. Collection stops at maxCandidates.
func collectCandidates(links []scannedLink, base *url.URL, keep func(scannedLink) bool) []linkCandidate {
	n := len(links)
	var out []linkCandidate
	for i, link := range links {
		if link.Href == "" || strings.HasPrefix(link.Href, "#") || link.Href == "javascript:void(0)" {
			continue
		}
		if !keep(link) {
			continue
		}
		resolved := absoluteURL(base, link.Href)
		if resolved == "" {
			continue
		}
		out = append(out, linkCandidate{
			URL:           resolved,
			Text:          link.Text,
			AriaLabel:     link.Aria,
			PositionScore: positionScore(i, n),
		})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

func positionScore(i, n int) float64 {
	if n < 1 {
		n = 1
	}
	score := 1.0 - float64(i)/float64(n)
	if score < 0.1 {
		return 0.1
	}
	return score
}

func absoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}

func queryCandidates(links []scannedLink, base *url.URL, query string) []linkCandidate {
	terms := strings.Fields(strings.ToLower(query))
	return collectCandidates(links, base, func(l scannedLink) bool {
		if l.Text == "" && l.Aria == "" {
			return false
		}
		searchText := strings.ToLower(l.Text + " " + l.Aria)
		for _, term := range terms {
			if strings.Contains(searchText, term) {
				return true
			}
		}
		return false
	})
}

func loginCandidates(links []scannedLink, base *url.URL) []linkCandidate {
	return collectCandidates(links, base, func(l scannedLink) bool {
		searchText := strings.ToLower(l.Text + " " + l.Aria)
		for _, term := range loginTerms {
			if strings.Contains(searchText, term) {
				return true
			}
		}
		hrefLower := strings.ToLower(l.Href)
		for _, hint := range loginHrefHints {
			if strings.Contains(hrefLower, hint) {
				return true
			}
		}
		return false
	})
}

// rankCandidates scores candidates against the query and returns the best.
// Exact query substrings in the link text dominate, aria labels count for
// half, each individual matching term adds a little, and the position score
// breaks ties in favor of links near the top of the page.
func rankCandidates(candidates []linkCandidate, query string) *linkCandidate {
	if len(candidates) == 0 {
		return nil
	}
	queryLower := strings.ToLower(query)
	terms := strings.Fields(queryLower)

	bestIdx := 0
	bestScore := math.Inf(-1)
	for i := range candidates {
		c := &candidates[i]
		textLower := strings.ToLower(c.Text)
		ariaLower := strings.ToLower(c.AriaLabel)

		score := 0.0
		if strings.Contains(textLower, queryLower) {
			score += scoreExactTextMatch
		}
		if c.AriaLabel != "" && strings.Contains(ariaLower, queryLower) {
			score += scoreAriaLabelMatch
		}
		searchText := textLower + " " + ariaLower
		for _, term := range terms {
			if strings.Contains(searchText, term) {
				score += scorePerTermMatch
			}
		}
		score += c.PositionScore

		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return &candidates[bestIdx]
}

func rankLoginCandidates(candidates []linkCandidate) *linkCandidate {
	if len(candidates) == 0 {
		return nil
	}
	bestIdx := 0
	bestScore := math.Inf(-1)
	for i := range candidates {
		c := &candidates[i]
		text := strings.ToLower(c.Text)
		aria := strings.ToLower(c.AriaLabel)
		urlLower := strings.ToLower(c.URL)

		score := c.PositionScore
		if strings.Contains(text, "sign in") || strings.Contains(aria, "sign in") {
			score += 4.0
		}
		if strings.Contains(text, "log in") || strings.Contains(aria, "log in") {
			score += 3.0
		}
		if strings.Contains(urlLower, "signin") || strings.Contains(urlLower, "login") {
			score += 3.0
		}
		if strings.Contains(text, "account") || strings.Contains(aria, "account") {
			score += 1.5
		}
		if strings.Contains(urlLower, "ap/signin") {
			score += 2.0
		}

		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return &candidates[bestIdx]
}
