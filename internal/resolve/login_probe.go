package resolve

import (
	"context"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"motorcortex/internal/logging"
)

// Login pages are often reachable only through script-driven menus, so when
// the link scan finds nothing we poke the page's account UI and watch the
// network traffic it triggers for a login-looking URL.

const navReadyJS = `() => {
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const navSelectors = [
		'header', 'nav',
		"[data-role*='nav' i]", "[data-spm*='nav' i]", "[data-spm-anchor-id*='nav' i]",
		"[data-testid*='header' i]", "[class*='header' i]", "[id*='header' i]",
		"[class*='nav' i]", "[id*='nav' i]",
	];
	for (const sel of navSelectors) {
		const list = document.querySelectorAll(sel);
		for (let i = 0; i < Math.min(list.length, 20); i++) {
			if (visible(list[i])) return true;
		}
	}
	const re = /sign\s*in|log\s*in|login|sign\s*up|register|join|account/i;
	return re.test(document.body ? document.body.innerText : '');
}`

const markLoginTargetJS = `(actionTerms) => {
	document.querySelectorAll('[data-login-probe]').forEach((el) => el.removeAttribute('data-login-probe'));

	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const loginText = /sign\s*in|log\s*in|login/i;
	const mark = (el, via) => {
		el.setAttribute('data-login-probe', via);
		return via;
	};

	const clickables = Array.from(document.querySelectorAll('a, button, [role=button]')).slice(0, 200);

	// Controls labelled like a login action but with no real destination.
	// These usually open a menu or dialog instead of navigating away.
	for (const el of clickables) {
		if (!visible(el) || !loginText.test(el.innerText || '')) continue;
		const href = (el.getAttribute('href') || '').trim();
		if (href && href !== '#' && href !== 'javascript:void(0)') continue;
		return mark(el, 'label');
	}
	for (const el of clickables) {
		if (visible(el) && loginText.test(el.innerText || '')) return mark(el, 'text');
	}

	const attrHints = document.querySelectorAll(
		"[data-testid*='login' i], [data-testid*='signin' i], [data-testid*='account' i], [data-testid*='profile' i], " +
		"[data-qa*='login' i], [data-qa*='signin' i], [data-qa*='account' i], [data-qa*='profile' i], " +
		"[id*='login' i], [id*='signin' i], [id*='account' i], [id*='profile' i], " +
		"[class*='login' i], [class*='signin' i], [class*='account' i], [class*='profile' i]"
	);
	for (let i = 0; i < Math.min(attrHints.length, 10); i++) {
		const el = attrHints[i];
		if (!visible(el)) continue;
		const clickable = el.closest('a, button, [role=button]');
		if (!clickable) continue;
		return mark(clickable, 'attr');
	}

	for (const el of clickables) {
		if (!visible(el)) continue;
		const combined = [
			el.innerText || '',
			el.getAttribute('aria-label') || '',
			el.getAttribute('title') || '',
			el.getAttribute('data-role') || '',
			el.getAttribute('data-testid') || '',
			el.getAttribute('data-qa') || '',
			el.getAttribute('data-spm') || '',
			el.getAttribute('data-spm-anchor-id') || '',
			el.id || '',
			el.getAttribute('class') || '',
		].join(' ').toLowerCase().trim();
		if (!combined) continue;
		if (actionTerms.some((term) => combined.includes(term))) return mark(el, 'generic');
	}
	return '';
}`

// loginURLFromNetwork triggers the page's login UI and infers the login URL
// from the GET traffic that follows. Returns "" when nothing login-like
// showed up.
func (r *Resolver) loginURLFromNetwork(ctx context.Context, page *rod.Page, baseURL string) string {
	if !waitLoginNav(page) {
		logging.ResolverDebug("login nav not ready, skipping network probe")
		return ""
	}

	preURL := currentURL(page)
	baseHost := hostOf(baseURL)
	logging.ResolverDebug("network probe capturing on %s", preURL)

	var (
		capMu    sync.Mutex
		captured []string
	)
	record := func(raw string) {
		if !strings.HasPrefix(raw, "http") {
			return
		}
		capMu.Lock()
		captured = append(captured, raw)
		capMu.Unlock()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wait := page.Context(captureCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil || e.Request.Method != "GET" || skippedResourceType(e.Type) {
				return
			}
			record(e.Request.URL)
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || skippedResourceType(e.Type) {
				return
			}
			if e.Response.Status < 200 || e.Response.Status >= 400 {
				return
			}
			record(e.Response.URL)
		},
	)
	go wait()

	hovered := false
	if via := markLoginTarget(page); via != "" {
		logging.ResolverDebug("login target found via %s scan", via)
		if !clickMarkedTarget(page) {
			logging.ResolverDebug("login click failed during network probe")
			return ""
		}
	} else {
		// No obvious control; hover where account menus usually live.
		if !hoverTopCorner(page) {
			logging.ResolverDebug("screen hover failed during network probe")
			return ""
		}
		hovered = true
	}

	if hovered {
		time.Sleep(500 * time.Millisecond)
		if markLoginTarget(page) != "" {
			logging.ResolverDebug("login target appeared after hover")
			_ = clickMarkedTarget(page)
		}
	}

	time.Sleep(2 * time.Second)
	cancel()

	if newURL := currentURL(page); newURL != "" && newURL != preURL && urlHasLoginTerms(newURL) {
		logging.ResolverDebug("login trigger navigated to %s", newURL)
		return newURL
	}

	capMu.Lock()
	urls := append([]string(nil), captured...)
	capMu.Unlock()
	logging.ResolverDebug("network probe captured %d requests", len(urls))

	resolved := pickLoginURLFromNetwork(urls, baseHost)
	if resolved == "" {
		logging.ResolverDebug("network probe found no login URL")
	}
	return resolved
}

// waitLoginNav waits for the page's navigation chrome to render, bailing out
// early on bot-check interstitials that will never show a real nav.
func waitLoginNav(page *rod.Page) bool {
	urlLower := strings.ToLower(currentURL(page))
	if strings.Contains(urlLower, "/_____tmd_____/punish") || strings.Contains(urlLower, "x5secdata") {
		logging.ResolverDebug("bot check page detected, aborting login probe")
		return false
	}

	for attempt := 0; attempt < 6; attempt++ {
		ready, err := evalBool(page, navReadyJS)
		if err != nil {
			return false
		}
		if ready {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	logging.ResolverDebug("login nav not detected after wait")
	return false
}

func markLoginTarget(page *rod.Page) string {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           markLoginTargetJS,
		JSArgs:       []interface{}{loginActionTerms},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return ""
	}
	return res.Value.Str()
}

func clickMarkedTarget(page *rod.Page) bool {
	el, err := page.Timeout(2 * time.Second).Element("[data-login-probe]")
	if err != nil {
		return false
	}
	return el.Click(proto.InputMouseButtonLeft, 1) == nil
}

func hoverTopCorner(page *rod.Page) bool {
	width, height := 1280.0, 720.0
	if res, err := page.Evaluate(&rod.EvalOptions{
		JS:      `() => ({width: window.innerWidth, height: window.innerHeight})`,
		ByValue: true,
	}); err == nil && res != nil {
		if w := res.Value.Get("width").Num(); w > 0 {
			width = w
		}
		if h := res.Value.Get("height").Num(); h > 0 {
			height = h
		}
	}
	x := width * 0.88
	y := height * 0.12
	logging.ResolverDebug("screen hover fallback at x=%.0f y=%.0f", x, y)
	return page.Mouse.MoveTo(proto.Point{X: x, Y: y}) == nil
}

func evalBool(page *rod.Page, js string, args ...interface{}) (bool, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func currentURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func skippedResourceType(t proto.NetworkResourceType) bool {
	switch t {
	case proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeScript,
		proto.NetworkResourceTypeMedia:
		return true
	}
	return false
}

// pickLoginURLFromNetwork scores captured URLs for login-ness. Hosts that
// mention auth outrank paths that do, and leaving the origin host is a weak
// positive signal since many sites park login on a dedicated subdomain.
func pickLoginURLFromNetwork(captured []string, baseHost string) string {
	best := ""
	bestScore := math.Inf(-1)
	for _, raw := range captured {
		if !strings.HasPrefix(raw, "http") {
			continue
		}
		if hasAssetSuffix(raw) {
			continue
		}
		if !urlHasLoginTerms(raw) {
			continue
		}
		host := hostOf(raw)

		score := 0.0
		if strings.Contains(host, "login") || strings.Contains(host, "auth") || strings.Contains(host, "signin") {
			score += 3.0
		}
		if strings.Contains(raw, "login") || strings.Contains(raw, "signin") || strings.Contains(raw, "sign-in") {
			score += 2.0
		}
		if host != "" && host != baseHost {
			score += 1.0
		}
		if score > bestScore {
			bestScore = score
			best = raw
		}
	}
	return best
}
