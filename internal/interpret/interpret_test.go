package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{
			name:  "plain object",
			input: `{"steps": []}`,
			want:  map[string]any{"steps": []any{}},
		},
		{
			name:  "object with prose around it",
			input: "Sure! Here is the plan:\n{\"steps\": []}\nLet me know.",
			want:  map[string]any{"steps": []any{}},
		},
		{
			name:  "markdown fenced output",
			input: "```json\n{\"steps\": [{\"intent\": \"open_app\", \"app\": \"Safari\"}]}\n```",
			want: map[string]any{"steps": []any{
				map[string]any{"intent": "open_app", "app": "Safari"},
			}},
		},
		{
			name:  "braces inside strings",
			input: `{"steps": [{"intent": "type_text", "text": "if x { y }"}]}`,
			want: map[string]any{"steps": []any{
				map[string]any{"intent": "type_text", "text": "if x { y }"},
			}},
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"steps": [{"intent": "type_text", "text": "say \"hi\""}]}`,
			want: map[string]any{"steps": []any{
				map[string]any{"intent": "type_text", "text": `say "hi"`},
			}},
		},
		{
			name:  "bare array output",
			input: `[{"intent": "open_app", "app": "Safari"}, {"intent": "key_combo", "keys": ["cmd", "l"]}]`,
			want: []any{
				map[string]any{"intent": "open_app", "app": "Safari"},
				map[string]any{"intent": "key_combo", "keys": []any{"cmd", "l"}},
			},
		},
		{
			name:  "single element array stays an array",
			input: `[{"intent": "open_app", "app": "Safari"}]`,
			want: []any{
				map[string]any{"intent": "open_app", "app": "Safari"},
			},
		},
		{
			name:  "broken object then valid one",
			input: `{"oops": } {"steps": []}`,
			want:  map[string]any{"steps": []any{}},
		},
		{
			name:  "no json at all",
			input: "I cannot help with that.",
			want:  nil,
		},
		{
			name:  "unterminated object",
			input: `{"steps": [`,
			want:  nil,
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractJSON() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	uiCtx := &intent.UIContext{Platform: "darwin", ClientOS: "darwin", ActiveWindow: "Safari"}
	prompt := buildPrompt("open youtube", uiCtx, []string{"scroll", "open_url", "open_app"})

	if !strings.Contains(prompt, "Supported intents: open_app, open_url, scroll\n") {
		t.Error("intent list should be sorted and comma separated")
	}
	if !strings.Contains(prompt, `"steps": [`) {
		t.Error("prompt should include the schema block")
	}
	if !strings.Contains(prompt, `"active_window":"Safari"`) {
		t.Error("prompt should embed the UI context as JSON")
	}
	if !strings.HasSuffix(prompt, "Request: open youtube") {
		t.Error("prompt should end with the request line")
	}
}

func TestBuildPrompt_NoIntentsNoContext(t *testing.T) {
	prompt := buildPrompt("do something", nil, nil)
	if strings.Contains(prompt, "Supported intents") {
		t.Error("intent line should be omitted when the list is empty")
	}
	if !strings.Contains(prompt, "Context: {}\n") {
		t.Error("missing context should serialize as an empty object")
	}
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.Model = "test-model"
	return New(cfg)
}

func TestClient_Interpret(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"steps": [{"intent": "open_app", "app": "Safari"}]}`,
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	got, err := client.Interpret(context.Background(), "open safari", nil, []string{"open_app"})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}

	parsed, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("got %T, want map", got)
	}
	steps, ok := parsed["steps"].([]any)
	if !ok || len(steps) != 1 {
		t.Fatalf("steps = %#v", parsed["steps"])
	}

	if gotBody["model"] != "test-model" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["stream"] != false {
		t.Errorf("stream = %v, want false", gotBody["stream"])
	}
	opts, _ := gotBody["options"].(map[string]any)
	if opts["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want 0.2", opts["temperature"])
	}
	prompt, _ := gotBody["prompt"].(string)
	if !strings.Contains(prompt, "Request: open safari") {
		t.Errorf("prompt missing request line: %.120s", prompt)
	}
}

func TestClient_InterpretServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Interpret(context.Background(), "open safari", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestClient_InterpretNoJSONInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "I cannot help with that."})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Interpret(context.Background(), "gibberish", nil, nil)
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("err = %v, want ErrBadResponse", err)
	}
}

func TestClient_InterpretUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := testClient(t, server.URL)
	_, err := client.Interpret(context.Background(), "open safari", nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
