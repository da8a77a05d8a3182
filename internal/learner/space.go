package learner

import "fmt"

// ActionSpace is the ordered set of actions the Q-function scores. Aliases
// let finer-grained action ids (planner tasks, reasoning output) share the
// index of a canonical action.
type ActionSpace struct {
	names   []string
	index   map[string]int
	aliases map[string]string
}

// NewActionSpace validates names and aliases. Every alias must point at a
// name in the space.
func NewActionSpace(names []string, aliases map[string]string) (*ActionSpace, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("action space is empty")
	}
	s := &ActionSpace{
		names:   append([]string(nil), names...),
		index:   make(map[string]int, len(names)),
		aliases: make(map[string]string, len(aliases)),
	}
	for i, n := range names {
		if _, dup := s.index[n]; dup {
			return nil, fmt.Errorf("duplicate action %q", n)
		}
		s.index[n] = i
	}
	for from, to := range aliases {
		if _, ok := s.index[to]; !ok {
			return nil, fmt.Errorf("alias %q targets unknown action %q", from, to)
		}
		s.aliases[from] = to
	}
	return s, nil
}

// Index resolves action, directly or through an alias.
func (s *ActionSpace) Index(action string) (int, bool) {
	if i, ok := s.index[action]; ok {
		return i, true
	}
	if to, ok := s.aliases[action]; ok {
		return s.index[to], true
	}
	return 0, false
}

// Canonical returns the space name action resolves to.
func (s *ActionSpace) Canonical(action string) (string, bool) {
	i, ok := s.Index(action)
	if !ok {
		return "", false
	}
	return s.names[i], true
}

func (s *ActionSpace) Name(i int) string { return s.names[i] }
func (s *ActionSpace) Size() int        { return len(s.names) }

// Names returns the canonical actions in index order.
func (s *ActionSpace) Names() []string {
	return append([]string(nil), s.names...)
}
