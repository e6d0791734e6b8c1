package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/jask/testdock/internal/results"
)

// Header, status bar and footer take one line each.
const chromeLines = 3

func (a *App) bodyHeight() int {
	return max(4, a.height-chromeLines)
}

func (a *App) treeWidth() int {
	if !a.showOutput {
		return a.width
	}
	return a.width * 11 / 20
}

// treeRows is how many rows fit in the tree box below its title.
func (a *App) treeRows() int {
	return max(1, a.bodyHeight()-3)
}

func (a *App) layout() {
	outW := a.width - a.treeWidth()
	a.output.Width = max(1, outW-4)
	a.output.Height = max(1, a.bodyHeight()-3)
	a.scrollToCursor()
	a.refreshOutput()
}

func (a *App) scrollToCursor() {
	visible := a.treeRows()
	if a.cursor < a.offset {
		a.offset = a.cursor
	}
	if a.cursor >= a.offset+visible {
		a.offset = a.cursor - visible + 1
	}
	a.offset = max(0, min(a.offset, max(0, len(a.rows)-visible)))
}

func (a *App) View() string {
	if a.width == 0 {
		return "starting testdock..."
	}
	body := renderBox("tests", a.renderTree(), a.treeWidth(), a.bodyHeight(), !a.searching)
	if a.showOutput {
		var side string
		if a.searching {
			side = renderBox("search", a.renderSearch(), a.width-a.treeWidth(), a.bodyHeight(), true)
		} else {
			side = renderBox("output", a.output.View(), a.width-a.treeWidth(), a.bodyHeight(), false)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, side)
	} else if a.searching {
		body = renderBox("search", a.renderSearch(), a.width, a.bodyHeight(), true)
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.renderHeader(), body, a.renderStatusBar(), a.renderFooter())
}

func (a *App) renderHeader() string {
	parts := []string{titleStyle.Render("testdock")}
	if tree, ok := a.runner.Tree(); ok {
		root := tree.Root()
		st := results.StateOf(tree, a.runner.Store(), root.ID)
		parts = append(parts, stateIndicator(st, a.spinner.View())+" "+results.Label(tree, a.runner.Store(), root.ID))
	}
	if a.running {
		parts = append(parts, a.spinner.View()+" running")
	}
	if a.lastRun != nil {
		lr := a.lastRun
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("last run %s: %d passed, %d failed of %d",
			lr.FinishedAt.Local().Format("Jan 2 15:04"), lr.Passed, lr.Failed, lr.Total)))
	}
	line := strings.Join(parts, mutedStyle.Render("  ·  "))
	return ansi.Truncate(line, a.width, "")
}

func (a *App) renderTree() string {
	if len(a.rows) == 0 {
		if a.loading {
			return mutedStyle.Render("discovering tests...")
		}
		return mutedStyle.Render("no tests")
	}
	inner := max(1, a.treeWidth()-4)
	end := min(len(a.rows), a.offset+a.treeRows())
	lines := make([]string, 0, end-a.offset)
	for i := a.offset; i < end; i++ {
		lines = append(lines, a.renderRow(a.rows[i], i == a.cursor, inner))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderRow(r row, selected bool, width int) string {
	marker := "  "
	if r.Children {
		marker = "▾ "
		if r.Folded {
			marker = "▸ "
		}
	}
	label := r.Label
	switch {
	case selected:
		label = selectedRowStyle.Render(label)
	case r.Children:
		label = suiteLabelStyle.Render(label)
	default:
		label = leafLabelStyle.Render(label)
	}
	line := strings.Repeat("  ", r.Depth) + marker + stateIndicator(r.State, a.spinner.View()) + " " + label
	return ansi.Truncate(line, width, "…")
}

func (a *App) renderSearch() string {
	lines := []string{a.search.View()}
	inner := max(1, a.width-a.treeWidth()-4)
	if !a.showOutput {
		inner = max(1, a.width-4)
	}
	for i, m := range a.matches {
		text := m.Label
		if i == a.matchCursor {
			text = selectedRowStyle.Render("> " + text)
		} else {
			text = searchMatchStyle.Render("  " + text)
		}
		lines = append(lines, ansi.Truncate(text, inner, "…"))
	}
	if strings.TrimSpace(a.search.Value()) != "" && len(a.matches) == 0 {
		lines = append(lines, mutedStyle.Render("  no matches"))
	}
	return strings.Join(lines, "\n")
}

func (a *App) activeScope() string {
	if a.searching {
		return scopeSearch
	}
	return scopeTree
}

func (a *App) renderFooter() string {
	space := footerStyle.Render(" ")
	sep := footerStyle.Render("  ")
	locked := a.controlsLocked()

	parts := make([]string, 0, 12)
	for _, b := range a.keys.BindingsForScope(a.activeScope()) {
		if locked && runControl(b.Action) {
			continue
		}
		h := b.Help()
		parts = append(parts, footerKeyStyle.Render(h.Key)+space+footerDescStyle.Render(h.Desc))
	}
	line := strings.Join(parts, sep)
	if line == "" {
		line = footerDescStyle.Render("No shortcuts")
	}
	return renderBar(footerStyle, max(1, a.width), line)
}

// runControl reports whether action starts a run or a discovery. Those are
// hidden while the dock is busy.
func runControl(action Action) bool {
	switch action {
	case actionRunAll, actionRunSelected, actionRerunFailed, actionReload:
		return true
	}
	return false
}

func (a *App) renderStatusBar() string {
	msg := strings.TrimSpace(a.status)
	if msg == "" {
		msg = "Ready"
	}
	if a.statusErr {
		return renderBar(statusErrBarStyle, max(1, a.width), msg)
	}
	return renderBar(statusBarStyle, max(1, a.width), msg)
}

func renderBar(style lipgloss.Style, width int, text string) string {
	line := strings.ReplaceAll(text, "\n", " ")
	line = ansi.Truncate(line, width, "")
	if w := ansi.StringWidth(line); w < width {
		line += strings.Repeat(" ", width-w)
	}
	return style.Width(width).MaxWidth(width).Render(line)
}

func renderBox(title, content string, width, height int, focused bool) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	border := colorBorder
	if focused {
		border = colorFocus
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width - 2).
		Height(max(1, height-2))
	return style.Render(titleStyle.Render("["+title+"]") + "\n" + content)
}
