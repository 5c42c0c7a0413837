package resolve

import (
	"net/url"
	"regexp"
	"strings"
)

// CommonDomains maps well known site keywords to their canonical hosts.
// The resolver and the router both consult this table before guessing.
var CommonDomains = map[string]string{
	"youtube":   "www.youtube.com",
	"gmail":     "mail.google.com",
	"google":    "www.google.com",
	"github":    "github.com",
	"twitter":   "twitter.com",
	"facebook":  "www.facebook.com",
	"linkedin":  "www.linkedin.com",
	"reddit":    "www.reddit.com",
	"instagram": "www.instagram.com",
	"amazon":    "www.amazon.com",
}

// DefaultSearchTemplate is used when no search engine is configured.
// {query} is replaced with the form-encoded query.
const DefaultSearchTemplate = "https://duckduckgo.com/?q={query}"

// Link ranking weights.
const (
	scoreExactTextMatch = 10.0
	scoreAriaLabelMatch = 5.0
	scorePerTermMatch   = 2.0
)

var (
	loginQueryTerms = []string{"login", "log in", "sign in", "signin"}

	loginTerms = []string{
		"sign in",
		"signin",
		"log in",
		"login",
		"log-in",
		"account",
		"my account",
	}

	loginActionTerms = []string{
		"sign in",
		"signin",
		"log in",
		"login",
		"log-in",
		"sign up",
		"signup",
		"register",
		"join",
		"account",
		"profile",
		"user",
	}

	loginHrefHints = []string{
		"signin",
		"login",
		"log-in",
		"sign-in",
		"account",
		"ap/signin",
	}

	assetSuffixes = []string{".js", ".css", ".png", ".jpg", ".jpeg", ".svg", ".gif"}
)

var (
	tldSuffixRe    = regexp.MustCompile(`\.(com|net|org|io|co)$`)
	homepageSlugRe = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// InferInitialURL picks the page the resolver should load first for a query.
// Full URLs pass through, known keywords map to their canonical host, bare
// domain-looking words get a .com guess, and everything else lands on the
// configured search engine.
func InferInitialURL(query, searchTemplate string) string {
	q := strings.ToLower(strings.TrimSpace(query))

	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") {
		return query
	}

	first := firstWord(q)
	if host, ok := CommonDomains[first]; ok {
		return "https://" + host
	}

	domain := tldSuffixRe.ReplaceAllString(first, "")
	if strings.Contains(domain, ".") || len(domain) > 3 {
		return "https://" + domain + ".com"
	}

	return SearchURL(searchTemplate, query)
}

// SearchURL expands a search engine template for the given query.
func SearchURL(template, query string) string {
	if template == "" {
		template = DefaultSearchTemplate
	}
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
}

// ExtractDomain guesses a homepage host from the query's first word.
// Returns "" when the word does not look like a domain.
func ExtractDomain(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	first := firstWord(q)

	if host, ok := CommonDomains[first]; ok {
		return host
	}

	domain := tldSuffixRe.ReplaceAllString(first, "")
	if homepageSlugRe.MatchString(domain) && len(domain) >= 3 {
		return domain + ".com"
	}
	return ""
}

func firstWord(q string) string {
	if !strings.Contains(q, " ") {
		return q
	}
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isLoginQuery(query string) bool {
	q := strings.ToLower(query)
	for _, term := range loginQueryTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// loginBaseURL strips a login-ish path so the probe starts from the site
// root, where the real account entry point lives.
func loginBaseURL(initialURL string) string {
	parsed, err := url.Parse(initialURL)
	if err != nil {
		return initialURL
	}
	pathLower := strings.ToLower(parsed.Path)
	hinted := strings.Contains(pathLower, "login")
	for _, hint := range loginHrefHints {
		if strings.Contains(pathLower, hint) {
			hinted = true
			break
		}
	}
	if hinted {
		return parsed.Scheme + "://" + parsed.Host + "/"
	}
	return initialURL
}

func urlHasLoginTerms(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, hint := range loginHrefHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	for _, term := range loginTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func hasAssetSuffix(rawURL string) bool {
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(rawURL, suffix) {
			return true
		}
	}
	return false
}
