package reasoning

import (
	"encoding/json"
	"strings"
)

type structured struct {
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Rationale string `json:"rationale"`
	Priority  int    `json:"priority"`
}

// parse extracts a decision from raw. It tries, in order: a JSON object
// naming a recognized action; the earliest recognized action name in the
// text; the configured keywords in order.
func (c *Client) parse(raw string) (Decision, bool) {
	text := stripFences(raw)

	if obj, ok := firstObject(text); ok {
		var s structured
		if err := json.Unmarshal([]byte(obj), &s); err == nil {
			action := normalizeAction(s.Action)
			if c.recognized[action] {
				why := s.Reason
				if why == "" {
					why = s.Rationale
				}
				return Decision{Action: action, Rationale: why, Priority: s.Priority, Source: SourceStructured}, true
			}
		}
	}

	lower := strings.ToLower(raw)
	best, bestAt := "", -1
	for _, a := range c.actions {
		if at := tokenIndex(lower, a); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = a, at
		}
	}
	if best != "" {
		return Decision{Action: best, Rationale: clip(strings.TrimSpace(raw), 200), Source: SourceHeuristic}, true
	}

	for _, kw := range c.cfg.Keywords {
		if c.recognized[kw.Action] && strings.Contains(lower, strings.ToLower(kw.Word)) {
			return Decision{Action: kw.Action, Rationale: clip(strings.TrimSpace(raw), 200), Source: SourceHeuristic}, true
		}
	}
	return Decision{}, false
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} span in s, honouring
// quoted strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// normalizeAction lowercases and joins words with underscores, so
// "Gather Wood" and "gather-wood" both become gather_wood.
func normalizeAction(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
}

// tokenIndex returns the byte offset of word in s where it stands as a
// whole token, or -1. Tokens are runs of letters, digits and underscores.
func tokenIndex(s, word string) int {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		at := from + i
		end := at + len(word)
		if (at == 0 || !isWordByte(s[at-1])) && (end == len(s) || !isWordByte(s[end])) {
			return at
		}
		from = at + 1
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
