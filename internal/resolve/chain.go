package resolve

import (
	"context"
	"fmt"
	"time"

	"motorcortex/internal/config"
	"motorcortex/internal/logging"
)

// Fallback strategy names, in the order the chain tries them.
const (
	FallbackResolution = "resolution"
	FallbackSearch     = "search"
	FallbackHomepage   = "homepage"
	FallbackNone       = "none"
)

// Chain outcome statuses.
const (
	ChainOK        = "ok"
	ChainAllFailed = "all_failed"
)

// URLSource resolves a query to a Result. *Resolver is the production
// implementation; tests substitute canned ones.
type URLSource interface {
	Resolve(ctx context.Context, query string) Result
}

// FallbackResult reports which strategy produced the final URL and what was
// tried along the way.
type FallbackResult struct {
	Status       string   `json:"status"`
	FinalURL     string   `json:"final_url,omitempty"`
	FallbackUsed string   `json:"fallback_used"`
	Attempts     []string `json:"attempts_made"`
	Resolution   *Result  `json:"resolution_result,omitempty"`
	ElapsedMS    int64    `json:"elapsed_ms"`
	Error        string   `json:"error_message,omitempty"`
}

// Chain tries resolution strategies in order until one yields a URL: live
// DOM resolution first, then a search engine query, then a bare homepage
// guess. With the search fallback enabled the chain practically always
// produces something openable.
type Chain struct {
	resolver URLSource
	cfg      *config.Config
}

// NewChain builds a chain on top of a resolver.
func NewChain(resolver URLSource, cfg *config.Config) *Chain {
	return &Chain{resolver: resolver, cfg: cfg}
}

// Execute runs the chain for query.
func (c *Chain) Execute(ctx context.Context, query string) FallbackResult {
	start := time.Now()
	attempts := []string{FallbackResolution}

	resolution := c.resolver.Resolve(ctx, query)
	if resolution.Status == StatusOK && resolution.ResolvedURL != "" {
		logging.Resolver("resolved %q via DOM search: %s", query, resolution.ResolvedURL)
		return FallbackResult{
			Status:       ChainOK,
			FinalURL:     resolution.ResolvedURL,
			FallbackUsed: FallbackResolution,
			Attempts:     attempts,
			Resolution:   &resolution,
			ElapsedMS:    time.Since(start).Milliseconds(),
		}
	}

	if c.cfg.Resolver.EnableSearchFallback {
		attempts = append(attempts, FallbackSearch)
		if searchURL := SearchURL(c.cfg.Resolver.SearchTemplate, query); searchURL != "" {
			logging.Resolver("falling back to search for %q", query)
			return FallbackResult{
				Status:       ChainOK,
				FinalURL:     searchURL,
				FallbackUsed: FallbackSearch,
				Attempts:     attempts,
				Resolution:   &resolution,
				ElapsedMS:    time.Since(start).Milliseconds(),
			}
		}
	}

	if c.cfg.Resolver.EnableHomepageFallback {
		attempts = append(attempts, FallbackHomepage)
		if domain := ExtractDomain(query); domain != "" {
			homepage := "https://" + domain
			logging.Resolver("falling back to homepage for %q: %s", query, homepage)
			return FallbackResult{
				Status:       ChainOK,
				FinalURL:     homepage,
				FallbackUsed: FallbackHomepage,
				Attempts:     attempts,
				Resolution:   &resolution,
				ElapsedMS:    time.Since(start).Milliseconds(),
			}
		}
	}

	logging.ResolverWarn("all fallback strategies exhausted for %q", query)
	return FallbackResult{
		Status:       ChainAllFailed,
		FallbackUsed: FallbackNone,
		Attempts:     attempts,
		Resolution:   &resolution,
		ElapsedMS:    time.Since(start).Milliseconds(),
		Error:        fmt.Sprintf("all fallback strategies exhausted for query: %s", query),
	}
}
