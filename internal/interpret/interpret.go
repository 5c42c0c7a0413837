// Package interpret turns natural-language text into candidate action steps
// by prompting a local Ollama model. Model output is advisory only: the
// engine validates every step against the intent schema before anything
// executes.
package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
)

// ErrUnavailable reports that the local model endpoint could not be reached
// or answered with a non-200 status.
var ErrUnavailable = errors.New("local LLM unavailable")

// ErrBadResponse reports that the model answered but produced no parseable
// JSON.
var ErrBadResponse = errors.New("LLM did not return valid JSON")

// Client calls a local Ollama /api/generate endpoint.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New builds a client from config. The base URL and model honor the
// EASY_OLLAMA_URL and EASY_OLLAMA_MODEL environment overrides applied at
// config load.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.LLM.BaseURL, "/"),
		model:       cfg.LLM.Model,
		temperature: cfg.LLM.Temperature,
		httpClient:  &http.Client{Timeout: cfg.GetLLMTimeout()},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Interpret prompts the model and returns the decoded JSON value: either a
// map carrying a "steps" list or a bare list of steps. Validation is the
// caller's job.
func (c *Client) Interpret(ctx context.Context, text string, uiCtx *intent.UIContext, supportedIntents []string) (any, error) {
	prompt := buildPrompt(text, uiCtx, supportedIntents)

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	timer := logging.StartTimer(logging.CategoryInterpret, "ollama generate")
	resp, err := c.httpClient.Do(req)
	timer.StopWithInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("invalid LLM response: %w", err)
	}

	parsed := ExtractJSON(decoded.Response)
	if parsed == nil {
		logging.InterpretError("model output carried no JSON: %.200s", decoded.Response)
		return nil, ErrBadResponse
	}
	logging.InterpretDebug("interpreted %q", text)
	return parsed, nil
}

const promptSchema = `Use this schema:
{
  "steps": [
    {"intent":"open_url","url":"https://..."},
    {"intent":"wait_for_url","url":"https://...","timeout_secs":15,"interval_secs":0.5},
    {"intent":"open_app","app":"App Name"},
    {"intent":"key_combo","keys":["cmd","l"]},
    {"intent":"type_text","text":"hello"},
    {"intent":"scroll","direction":"down","amount":3}
  ]
}
Rules:
- Only output JSON. No markdown, no commentary.
- Use the smallest number of steps.
- If the request is ambiguous, return an empty steps list.
- For copy/paste/cut/undo/redo/select all, use key_combo with cmd on macOS or ctrl on Windows.
`

// buildPrompt mirrors the schema-first prompt the dispatcher was tuned on.
// The UI context rides along as compact JSON so the model sees the active
// window and selection without a second round trip.
func buildPrompt(text string, uiCtx *intent.UIContext, supportedIntents []string) string {
	contextJSON := "{}"
	if uiCtx != nil {
		if raw, err := json.Marshal(uiCtx); err == nil {
			contextJSON = string(raw)
		}
	}

	intentLine := ""
	if len(supportedIntents) > 0 {
		names := append([]string(nil), supportedIntents...)
		sort.Strings(names)
		intentLine = "Supported intents: " + strings.Join(names, ", ") + "\n"
	}

	return "You are a command intent parser. Convert the user request into JSON only. " +
		intentLine +
		promptSchema +
		"Context: " + contextJSON + "\n" +
		"Request: " + text
}
