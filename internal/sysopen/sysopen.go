// Package sysopen hands URLs to the system default browser. Every URL that
// leaves the process goes through this package, so the safety predicate is
// applied here exactly once, uniformly for resolver output, fallback URLs,
// and direct open_url steps.
package sysopen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// ErrUnsafeURL marks URLs rejected by the safety predicate.
var ErrUnsafeURL = errors.New("unsafe url")

const (
	maxURLLen   = 2048
	openTimeout = 10 * time.Second
)

// IsSafeURL validates that a URL may be opened or navigated to.
//
// Checks: non-empty, reasonable length, http/https scheme, host present, not
// localhost/loopback, not a private/link-local IP, not the cloud metadata
// endpoint.
func IsSafeURL(raw string) bool {
	if raw == "" || len(raw) > maxURLLen {
		return false
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return false
	}

	if hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1" {
		return false
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return false
		}
		// Cloud metadata service (link-local, but rejected explicitly)
		if ip.String() == "169.254.169.254" {
			return false
		}
	}

	return true
}

// Runner executes an external command. The default implementation shells
// out; tests substitute a recorder.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

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

// Opener opens URLs in the client's default browser.
type Opener struct {
	clientOS string
	runner   Runner
}

// New creates an Opener for the given client OS (darwin, windows, anything
// else uses xdg-open).
func New(clientOS string) *Opener {
	return &Opener{clientOS: clientOS, runner: execRunner{}}
}

// NewWithRunner creates an Opener with a custom command runner.
func NewWithRunner(clientOS string, runner Runner) *Opener {
	return &Opener{clientOS: clientOS, runner: runner}
}

// Open validates the URL and hands it to the platform opener.
func (o *Opener) Open(ctx context.Context, rawURL string) error {
	if !IsSafeURL(rawURL) {
		return fmt.Errorf("%w: %s", ErrUnsafeURL, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	var err error
	switch o.clientOS {
	case "darwin":
		// "--" stops flag injection from crafted URLs
		err = o.runner.Run(ctx, "open", "--", rawURL)
	case "windows":
		// empty string is the window title slot of "start"
		err = o.runner.Run(ctx, "cmd", "/c", "start", "", rawURL)
	default:
		err = o.runner.Run(ctx, "xdg-open", rawURL)
	}
	if err != nil {
		return fmt.Errorf("open url %s: %w", rawURL, err)
	}
	return nil
}
