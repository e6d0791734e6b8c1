package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/testdock/internal/config"
)

func TestKeyRegistryLookupByScope(t *testing.T) {
	r := NewKeyRegistry()

	run := r.Lookup(keyMsg("r"), scopeTree)
	require.NotNil(t, run)
	require.Equal(t, actionRunAll, run.Action)

	reload := r.Lookup(keyMsg("R"), scopeTree)
	require.NotNil(t, reload)
	require.Equal(t, actionReload, reload.Action)

	require.Nil(t, r.Lookup(keyMsg("r"), scopeSearch))

	quit := r.Lookup(tea.KeyMsg{Type: tea.KeyCtrlC}, scopeSearch)
	require.NotNil(t, quit)
	require.Equal(t, actionQuit, quit.Action)

	toggle := r.Lookup(tea.KeyMsg{Type: tea.KeySpace}, scopeTree)
	require.NotNil(t, toggle)
	require.Equal(t, actionToggle, toggle.Action)

	require.Equal(t, actionUp, r.Lookup(tea.KeyMsg{Type: tea.KeyUp}, scopeSearch).Action)
	require.Equal(t, actionDown, r.Lookup(tea.KeyMsg{Type: tea.KeyCtrlN}, scopeSearch).Action)
}

func TestKeyRegistryNoDuplicateInSameScope(t *testing.T) {
	r := &KeyRegistry{scopes: make(map[string]*keyScope)}

	require.True(t, r.Register("a", actionRunAll, key.NewBinding(key.WithKeys("x"))))
	require.False(t, r.Register("a", actionReload, key.NewBinding(key.WithKeys("y", "x"))))
	require.True(t, r.Register("b", actionReload, key.NewBinding(key.WithKeys("x"))))

	require.Len(t, r.BindingsForScope("a"), 1)
	require.Nil(t, r.Lookup(keyMsg("y"), "a"))
	require.Equal(t, actionRunAll, r.Lookup(keyMsg("x"), "a").Action)
	require.Equal(t, actionReload, r.Lookup(keyMsg("x"), "b").Action)
}

func TestOverrideUpdatesFooterHelp(t *testing.T) {
	r := NewKeyRegistry()
	down := r.Lookup(keyMsg("j"), scopeTree)
	require.NotNil(t, down)
	require.Equal(t, "j/↓", down.Help().Key)

	require.NoError(t, r.ApplyOverrides([]config.KeyOverride{
		{Scope: "tree", Action: "down", Keys: []string{"s"}},
		{Scope: "tree", Action: "toggle", Keys: []string{"Space"}},
	}))
	down = r.Lookup(keyMsg("s"), scopeTree)
	require.NotNil(t, down)
	require.Equal(t, "s", down.Help().Key)
	require.Equal(t, "down", down.Help().Desc)
	require.Nil(t, r.Lookup(keyMsg("j"), scopeTree))

	toggle := r.Lookup(tea.KeyMsg{Type: tea.KeySpace}, scopeTree)
	require.NotNil(t, toggle)
	require.Equal(t, "space", toggle.Help().Key)
}

func TestApplyOverrides(t *testing.T) {
	r := NewKeyRegistry()
	require.NoError(t, r.ApplyOverrides([]config.KeyOverride{
		{Scope: "tree", Action: "run_all", Keys: []string{"a", "Control+R"}},
	}))

	require.Equal(t, actionRunAll, r.Lookup(keyMsg("a"), scopeTree).Action)
	require.Equal(t, actionRunAll, r.Lookup(tea.KeyMsg{Type: tea.KeyCtrlR}, scopeTree).Action)
	require.Equal(t, actionReload, r.Lookup(keyMsg("R"), scopeTree).Action)
	require.Nil(t, r.Lookup(keyMsg("r"), scopeTree))
}

func TestApplyOverridesRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   []config.KeyOverride
		want string
	}{
		{"missing scope", []config.KeyOverride{{Action: "run_all", Keys: []string{"a"}}}, "scope is required"},
		{"unknown scope", []config.KeyOverride{{Scope: "nope", Action: "run_all", Keys: []string{"a"}}}, "unknown scope"},
		{"unknown action", []config.KeyOverride{{Scope: "tree", Action: "fly", Keys: []string{"a"}}}, "unknown action"},
		{"no keys", []config.KeyOverride{{Scope: "tree", Action: "run_all"}}, "keys are required"},
		{"conflict", []config.KeyOverride{{Scope: "tree", Action: "run_all", Keys: []string{"f"}}}, "conflict"},
		{"duplicate", []config.KeyOverride{
			{Scope: "tree", Action: "run_all", Keys: []string{"a"}},
			{Scope: "tree", Action: "run_all", Keys: []string{"b"}},
		}, "duplicated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewKeyRegistry().ApplyOverrides(tc.in)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
