package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/jask/testdock/internal/config"
)

// Action names what a key does. Config overrides refer to actions by name.
type Action string

const (
	actionQuit        Action = "quit"
	actionUp          Action = "up"
	actionDown        Action = "down"
	actionToggle      Action = "toggle"
	actionJumpTop     Action = "jump_top"
	actionJumpBottom  Action = "jump_bottom"
	actionRunAll      Action = "run_all"
	actionRunSelected Action = "run_selected"
	actionRerunFailed Action = "rerun_failed"
	actionReload      Action = "reload"
	actionSearch      Action = "search"
	actionScrollUp    Action = "scroll_up"
	actionScrollDown  Action = "scroll_down"
	actionConfirm     Action = "confirm"
	actionClearSearch Action = "clear_search"
)

const (
	scopeGlobal = "global"
	scopeTree   = "tree"
	scopeSearch = "search"
)

// Binding is a bubbles key binding tagged with the action it triggers.
type Binding struct {
	Action Action
	key.Binding
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

var defaultBindings = []struct {
	scope  string
	action Action
	kb     key.Binding
}{
	{scopeGlobal, actionQuit, bind("q", "quit", "q", "ctrl+c")},

	{scopeTree, actionUp, bind("k/↑", "up", "k", "up")},
	{scopeTree, actionDown, bind("j/↓", "down", "j", "down")},
	{scopeTree, actionToggle, bind("space", "fold", " ", "h", "l", "left", "right")},
	{scopeTree, actionJumpTop, bind("g", "top", "g", "home")},
	{scopeTree, actionJumpBottom, bind("G", "bottom", "G", "end")},
	{scopeTree, actionRunAll, bind("r", "run all", "r")},
	{scopeTree, actionRunSelected, bind("enter", "run selected", "enter")},
	{scopeTree, actionRerunFailed, bind("f", "rerun failed", "f")},
	{scopeTree, actionReload, bind("R", "reload", "R")},
	{scopeTree, actionSearch, bind("/", "search", "/")},
	{scopeTree, actionScrollUp, bind("pgup", "output up", "pgup")},
	{scopeTree, actionScrollDown, bind("pgdn", "output down", "pgdown")},
	{scopeTree, actionQuit, bind("q", "quit", "q", "ctrl+c")},

	{scopeSearch, actionUp, bind("↑", "prev", "up", "ctrl+p")},
	{scopeSearch, actionDown, bind("↓", "next", "down", "ctrl+n")},
	{scopeSearch, actionConfirm, bind("enter", "jump", "enter")},
	{scopeSearch, actionClearSearch, bind("esc", "cancel", "esc")},
}

type keyScope struct {
	bindings []*Binding
}

func (s *keyScope) find(action Action) *Binding {
	for _, b := range s.bindings {
		if b.Action == action {
			return b
		}
	}
	return nil
}

func (s *keyScope) owner(k string) *Binding {
	for _, b := range s.bindings {
		if slices.Contains(b.Keys(), k) {
			return b
		}
	}
	return nil
}

// checkConflicts fails when one key triggers two actions.
func (s *keyScope) checkConflicts() error {
	seen := make(map[string]Action)
	for _, b := range s.bindings {
		for _, k := range b.Keys() {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("key %q used by both %q and %q", k, prev, b.Action)
			}
			seen[k] = b.Action
		}
	}
	return nil
}

// KeyRegistry holds the bindings of every scope.
type KeyRegistry struct {
	scopes map[string]*keyScope
}

func NewKeyRegistry() *KeyRegistry {
	r := &KeyRegistry{scopes: make(map[string]*keyScope)}
	for _, d := range defaultBindings {
		r.Register(d.scope, d.action, d.kb)
	}
	return r
}

// Register adds kb to scope under action. It reports false, leaving the
// scope unchanged, when kb has no usable key or one of its keys is taken.
func (r *KeyRegistry) Register(scope string, action Action, kb key.Binding) bool {
	scope = strings.TrimSpace(scope)
	keys := normalizeKeys(kb.Keys())
	if scope == "" || len(keys) == 0 {
		return false
	}
	s, ok := r.scopes[scope]
	if !ok {
		s = &keyScope{}
		r.scopes[scope] = s
	}
	for _, k := range keys {
		if s.owner(k) != nil {
			return false
		}
	}
	kb.SetKeys(keys...)
	s.bindings = append(s.bindings, &Binding{Action: action, Binding: kb})
	return true
}

// BindingsForScope lists the bindings of scope in registration order.
func (r *KeyRegistry) BindingsForScope(scope string) []Binding {
	s, ok := r.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]Binding, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = *b
	}
	return out
}

// Lookup finds the binding matching msg in scope, falling back to the
// global scope.
func (r *KeyRegistry) Lookup(msg fmt.Stringer, scope string) *Binding {
	scopes := []string{scope}
	if scope != scopeGlobal {
		scopes = append(scopes, scopeGlobal)
	}
	for _, name := range scopes {
		s, ok := r.scopes[name]
		if !ok {
			continue
		}
		for _, b := range s.bindings {
			if key.Matches(msg, b.Binding) {
				return b
			}
		}
	}
	return nil
}

// ApplyOverrides rebinds actions from configuration. Each override replaces
// the keys of one action in one scope; the footer then shows the first key.
func (r *KeyRegistry) ApplyOverrides(items []config.KeyOverride) error {
	seen := make(map[string]bool, len(items))
	touched := make(map[string]*keyScope)
	for _, o := range items {
		scope := strings.TrimSpace(o.Scope)
		action := Action(strings.TrimSpace(o.Action))
		switch {
		case scope == "":
			return fmt.Errorf("key override: scope is required")
		case action == "":
			return fmt.Errorf("key override scope=%q: action is required", scope)
		}
		keys := normalizeKeys(o.Keys)
		if len(keys) == 0 {
			return fmt.Errorf("key override %s.%s: keys are required", scope, action)
		}
		s, ok := r.scopes[scope]
		if !ok {
			return fmt.Errorf("key override %s.%s: unknown scope", scope, action)
		}
		b := s.find(action)
		if b == nil {
			return fmt.Errorf("key override %s.%s: unknown action in scope", scope, action)
		}
		id := scope + "." + string(action)
		if seen[id] {
			return fmt.Errorf("key override %s: duplicated entry", id)
		}
		seen[id] = true

		b.SetKeys(keys...)
		b.SetHelp(displayKey(keys[0]), b.Help().Desc)
		touched[scope] = s
	}
	for name, s := range touched {
		if err := s.checkConflicts(); err != nil {
			return fmt.Errorf("key override conflict in scope %q: %w", name, err)
		}
	}
	return nil
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		n := normalizeKey(k)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// normalizeKey maps config spellings onto the names bubbletea reports.
// Single characters keep their case so R and r stay distinct.
func normalizeKey(k string) string {
	if k == " " {
		return k
	}
	k = strings.TrimSpace(k)
	if len(k) == 1 {
		return k
	}
	k = strings.ReplaceAll(strings.ToLower(k), " ", "")
	k = strings.Replace(k, "control+", "ctrl+", 1)
	switch k {
	case "space", "spacebar":
		return " "
	case "return":
		return "enter"
	case "escape":
		return "esc"
	case "pgdn", "pagedown":
		return "pgdown"
	case "pageup":
		return "pgup"
	}
	return k
}

func displayKey(k string) string {
	if k == " " {
		return "space"
	}
	return k
}
