package render

import (
	"github.com/rotisserie/eris"
)

// LayerToggle is the mutually exclusive group selector of an interactive map: exactly one
// group is active, and only the active group's layer and legend are visible.
type LayerToggle struct {
	groups []string
	active int
}

// NewLayerToggle starts with the first group active.
func NewLayerToggle(groups ...string) (*LayerToggle, error) {
	if len(groups) == 0 {
		return nil, eris.New("render: layer toggle needs at least one group")
	}
	seen := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g == "" {
			return nil, eris.New("render: layer group without a name")
		}
		if seen[g] {
			return nil, eris.Errorf("render: duplicate layer group %q", g)
		}
		seen[g] = true
	}
	return &LayerToggle{groups: append([]string(nil), groups...)}, nil
}

// Groups returns the group names in control order.
func (t *LayerToggle) Groups() []string { return append([]string(nil), t.groups...) }

// Active returns the visible group.
func (t *LayerToggle) Active() string { return t.groups[t.active] }

// ActiveIndex returns the position of the visible group.
func (t *LayerToggle) ActiveIndex() int { return t.active }

// Select makes name the only visible group.
func (t *LayerToggle) Select(name string) error {
	for i, g := range t.groups {
		if g == name {
			t.active = i
			return nil
		}
	}
	return eris.Errorf("render: no layer group %q", name)
}

// Visible reports whether a group's layer and legend are shown.
func (t *LayerToggle) Visible(name string) bool { return t.groups[t.active] == name }
