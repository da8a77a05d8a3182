package reasoning

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/talgya/speedrunner/internal/world"
)

const promptHeader = `You control an autonomous Minecraft speedrun agent. The goal is to defeat the Ender Dragon as fast as possible.`

const promptFooter = `Respond with JSON only: {"action": "<one of the available actions>", "reason": "<one sentence>", "priority": <1-10>}`

// buildPrompt renders s, the recognized actions and as much recent history
// as fits in MaxPromptChars. History is dropped before the situation is cut.
func (c *Client) buildPrompt(s world.Situation) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n## Situation\n")
	b.WriteString(summarize(s))
	situation := b.String()

	tail := "\n## Available actions\n" + strings.Join(c.actions, ", ") + "\n\n" + promptFooter

	limit := c.cfg.MaxPromptChars
	if limit <= 0 {
		return situation + c.historySection(-1) + tail
	}

	budget := limit - len(situation) - len(tail)
	if budget < 0 {
		keep := limit - len(tail)
		if keep < 0 {
			keep = 0
		}
		return truncate(truncate(situation, keep)+tail, limit)
	}
	return situation + c.historySection(budget) + tail
}

// historySection renders the newest HistoryInPrompt exchanges, oldest
// first, keeping only entries that fit in budget bytes. A negative budget
// means unlimited.
func (c *Client) historySection(budget int) string {
	n := c.cfg.HistoryInPrompt
	if n <= 0 {
		return ""
	}
	hist := c.History()
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}

	const heading = "\n## Recent decisions\n"
	var lines []string
	used := len(heading)
	for i := len(hist) - 1; i >= 0; i-- {
		h := hist[i]
		line := fmt.Sprintf("- [%s %s] %s: %s\n", h.Phase, clock(h.Elapsed.Seconds()), h.Action, clip(h.Rationale, 80))
		if budget >= 0 && used+len(line) > budget {
			break
		}
		used += len(line)
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(heading)
	for i := len(lines) - 1; i >= 0; i-- {
		b.WriteString(lines[i])
	}
	return b.String()
}

// summarize renders the parts of s a model needs to choose an action.
func summarize(s world.Situation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s (index %d)\n", s.Phase(), s.PhaseIndex())
	fmt.Fprintf(&b, "Elapsed: %s\n", clock(s.Elapsed().Seconds()))
	fmt.Fprintf(&b, "Position: %s  Health: %.0f\n", s.Position(), s.Health())

	var held []string
	for _, r := range world.Resources {
		if n := s.Count(r); n > 0 {
			held = append(held, fmt.Sprintf("%s=%d", r, n))
		}
	}
	if len(held) == 0 {
		held = append(held, "nothing")
	}
	fmt.Fprintf(&b, "Resources: %s\n", strings.Join(held, " "))

	var done []string
	for _, o := range world.Objectives {
		if s.Achieved(o) {
			done = append(done, string(o))
		}
	}
	if len(done) == 0 {
		done = append(done, "none")
	}
	fmt.Fprintf(&b, "Objectives reached: %s\n", strings.Join(done, ", "))
	return b.String()
}

func clock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
