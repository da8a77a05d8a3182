// Package dashboard is a terminal view of a running agent. It polls the
// status endpoint and redraws on every answer.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/talgya/speedrunner/internal/engine"
	"github.com/talgya/speedrunner/internal/world"
)

type statusMsg engine.Status

type errMsg struct{ err error }

type tickMsg time.Time

// KeyMap defines the dashboard bindings.
type KeyMap struct {
	Refresh key.Binding
	Pause   key.Binding
	Quit    key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Pause, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Pause:   key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(11)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	wonStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sourceStyle = map[string]lipgloss.Style{
		"learned":    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		"reasoning":  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"rule_based": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

// Model is the bubbletea model for the dashboard.
type Model struct {
	url      string
	client   *http.Client
	interval time.Duration

	status  engine.Status
	have    bool
	err     error
	updated time.Time
	paused  bool

	keys KeyMap
	help help.Model
}

// New polls baseURL (the agent's status server) every interval.
func New(baseURL string, interval time.Duration) Model {
	return Model{
		url:      strings.TrimRight(baseURL, "/") + "/api/v1/status",
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		keys:     DefaultKeyMap(),
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.fetch()
}

func (m Model) fetch() tea.Cmd {
	url, client := m.url, m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errMsg{err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return errMsg{err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("status endpoint returned %s", resp.Status)}
		}
		var st engine.Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return errMsg{fmt.Errorf("decode status: %w", err)}
		}
		return statusMsg(st)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case statusMsg:
		m.status = engine.Status(msg)
		m.have = true
		m.err = nil
		m.updated = time.Now()
		return m, m.tick()
	case errMsg:
		m.err = msg.err
		return m, m.tick()
	case tickMsg:
		if m.paused {
			return m, m.tick()
		}
		return m, m.fetch()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("speedrunner"))
	if m.paused {
		b.WriteString(dimStyle.Render("  (paused)"))
	}
	b.WriteString("\n\n")

	if !m.have {
		if m.err != nil {
			b.WriteString(errStyle.Render("cannot reach agent: " + m.err.Error()))
		} else {
			b.WriteString(dimStyle.Render("waiting for " + m.url))
		}
		b.WriteString("\n\n" + m.help.View(m.keys))
		return b.String()
	}

	st := m.status
	left := lipgloss.JoinVertical(lipgloss.Left,
		row("run", shortID(st.RunID)),
		row("outcome", outcome(st.Outcome)),
		row("phase", fmt.Sprintf("%s (#%d)", st.Phase, st.PhaseIndex+1)),
		row("elapsed", (time.Duration(st.Elapsed*float64(time.Second))).Round(time.Second).String()),
		row("ticks", fmt.Sprint(st.Ticks)),
		row("health", fmt.Sprintf("%.0f", st.Health)),
		row("deaths", fmt.Sprintf("%d (%d resets)", st.Deaths, st.Resets)),
		row("position", fmt.Sprintf("%.0f %.0f %.0f", st.Position.X, st.Position.Y, st.Position.Z)),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		row("source", sourceStyle[st.Source].Render(st.Source)),
		row("action", action(st)),
		row("why", st.Rationale),
		row("reward", fmt.Sprintf("%+.2f", st.Reward)),
		row("epsilon", fmt.Sprintf("%.3f", st.Epsilon)),
		row("trained", fmt.Sprintf("%d steps", st.TrainSteps)),
		row("buffered", fmt.Sprint(st.Buffered)),
	)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(left), " ", panelStyle.Render(right)))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("resources", resources(st.Resources)),
		row("milestones", milestones(st.Milestones)),
	)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("last poll failed: "+m.err.Error()) + "\n")
	} else if !m.updated.IsZero() {
		b.WriteString(dimStyle.Render("updated "+m.updated.Format(time.TimeOnly)) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func outcome(o engine.Outcome) string {
	if o == engine.Won {
		return wonStyle.Render(string(o))
	}
	return string(o)
}

func action(st engine.Status) string {
	if st.Executed != "" && st.Executed != st.Action {
		return st.Action + dimStyle.Render(" -> "+st.Executed)
	}
	return st.Action
}

func resources(res map[world.Resource]int) string {
	if len(res) == 0 {
		return dimStyle.Render("none")
	}
	keys := make([]string, 0, len(res))
	for r := range res {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, res[world.Resource(k)])
	}
	return strings.Join(parts, "  ")
}

func milestones(ms []world.Objective) string {
	if len(ms) == 0 {
		return dimStyle.Render("none yet")
	}
	parts := make([]string, len(ms))
	for i, o := range ms {
		parts[i] = string(o)
	}
	return strings.Join(parts, ", ")
}

// Run starts the dashboard in the alternate screen and blocks until quit.
func Run(baseURL string, interval time.Duration) error {
	_, err := tea.NewProgram(New(baseURL, interval), tea.WithAltScreen()).Run()
	return err
}
