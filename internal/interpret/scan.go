package interpret

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first parseable top-level JSON value out of model
// output. Objects are preferred; bare arrays are honored when the output
// leads with one. Returns nil when nothing parses.
func ExtractJSON(text string) any {
	arrayFirst := strings.HasPrefix(strings.TrimSpace(text), "[")

	if arrayFirst {
		if v := firstArray(text); v != nil {
			return v
		}
	}
	for _, candidate := range jsonCandidates(text, '{', '}') {
		var v map[string]any
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v
		}
	}
	if !arrayFirst {
		if v := firstArray(text); v != nil {
			return v
		}
	}
	return nil
}

func firstArray(text string) any {
	for _, candidate := range jsonCandidates(text, '[', ']') {
		var v []any
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v
		}
	}
	return nil
}

// jsonCandidates scans s for balanced top-level runs of the given delimiter
// pair, skipping delimiters inside JSON strings and escape sequences. A
// byte-level state machine is safe here: UTF-8 guarantees ASCII bytes never
// appear inside a multi-byte sequence.
func jsonCandidates(s string, open, close byte) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		switch b {
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}
