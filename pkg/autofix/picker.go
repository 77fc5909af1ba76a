package autofix

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

// TUIConfirmer previews proposals in an interactive checkbox list with a
// scrollable diff pane. Space toggles the proposal under the cursor, enter
// applies the checked set, and q or esc declines the whole round.
type TUIConfirmer struct{}

// Confirm runs the picker and returns the checked proposals.
func (TUIConfirmer) Confirm(ctx context.Context, proposals []*Proposal) ([]*Proposal, error) {
	p := tea.NewProgram(newPickerModel(proposals), tea.WithAltScreen(), tea.WithContext(ctx))
	result, err := p.Run()
	if err != nil {
		return nil, errors.Wrap(err, "error running proposal picker")
	}

	final, ok := result.(pickerModel)
	if !ok || !final.accepted {
		return nil, nil
	}

	var accepted []*Proposal
	for i, proposal := range proposals {
		if final.checked[i] {
			accepted = append(accepted, proposal)
		}
	}
	return accepted, nil
}

// pickerModel is the bubbletea model behind TUIConfirmer.
type pickerModel struct {
	proposals []*Proposal
	cursor    int
	checked   map[int]bool
	accepted  bool
	ready     bool
	width     int
	height    int
	diffView  viewport.Model

	titleStyle   lipgloss.Style
	cursorStyle  lipgloss.Style
	checkedStyle lipgloss.Style
	hintStyle    lipgloss.Style
}

func newPickerModel(proposals []*Proposal) pickerModel {
	checked := make(map[int]bool, len(proposals))
	for i := range proposals {
		checked[i] = true
	}

	return pickerModel{
		proposals:    proposals,
		checked:      checked,
		diffView:     viewport.New(0, 0),
		titleStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		cursorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		checkedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		hintStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (m pickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.diffView.Width = msg.Width - 2
		m.diffView.Height = max(3, msg.Height-len(m.proposals)-5)
		m.diffView.SetContent(m.currentDiff())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.accepted = false
			return m, tea.Quit
		case "enter":
			m.accepted = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.diffView.SetContent(m.currentDiff())
				m.diffView.GotoTop()
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.proposals)-1 {
				m.cursor++
				m.diffView.SetContent(m.currentDiff())
				m.diffView.GotoTop()
			}
			return m, nil
		case " ":
			m.checked[m.cursor] = !m.checked[m.cursor]
			return m, nil
		case "a":
			for i := range m.proposals {
				m.checked[i] = true
			}
			return m, nil
		case "n":
			for i := range m.proposals {
				m.checked[i] = false
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.diffView, cmd = m.diffView.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m pickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var list strings.Builder
	for i, p := range m.proposals {
		cursor := "  "
		if i == m.cursor {
			cursor = m.cursorStyle.Render("❯ ")
		}
		box := "[ ]"
		if m.checked[i] {
			box = m.checkedStyle.Render("[x]")
		}
		list.WriteString(fmt.Sprintf("%s%s %s\n", cursor, box, p.Label()))
	}

	diffBox := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 2).
		Render(m.diffView.View())

	hint := m.hintStyle.Render("↑↓:Navigate Space:Toggle a:All n:None Enter:Apply q:Skip")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.titleStyle.Render(fmt.Sprintf("Proposed repairs (%d checked of %d)", m.checkedCount(), len(m.proposals))),
		list.String(),
		diffBox,
		hint,
	)
}

func (m pickerModel) checkedCount() int {
	n := 0
	for _, ok := range m.checked {
		if ok {
			n++
		}
	}
	return n
}

func (m pickerModel) currentDiff() string {
	if len(m.proposals) == 0 {
		return ""
	}
	return m.proposals[m.cursor].Diff()
}
