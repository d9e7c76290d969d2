package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

// truncateToWidth cuts s so it fits in width display cells, marking the cut
// with "...".
func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(truncateToWidth(text, width-2), width-2) + "│"
}

// RoundInfo is the progress of the current round and the outcome of the last
// finalized one.
type RoundInfo struct {
	Round           int64
	SlotCount       int
	Forged          int
	AccumulatedFees int64
	Height          int64
	BlockID         string
	Forger          string
	Moniker         string
	State           string
	Halted          bool
	HaltReason      string

	LastFinalized int64
	LastFees      int64
	LastRemainder int64
	LastDigest    string
	Outsiders     int
}

// DelegateInfo is one row of the delegates table.
type DelegateInfo struct {
	Address        string
	Moniker        string
	Vote           int64
	Balance        int64
	ProducedBlocks int64
	MissedBlocks   int64
}

// RoundUpdateMsg is sent when round info should be updated
type RoundUpdateMsg struct {
	Round RoundInfo
}

// DelegatesUpdateMsg is sent when the delegates table should be updated
type DelegatesUpdateMsg struct {
	Delegates []DelegateInfo
}

// Model holds the TUI state
type Model struct {
	round     RoundInfo
	delegates []DelegateInfo
	width     int
	height    int
}

// NewModel creates a new TUI model
func NewModel() Model {
	return Model{delegates: []DelegateInfo{}}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RoundUpdateMsg:
		m.round = msg.Round
		return m, nil

	case DelegatesUpdateMsg:
		m.delegates = msg.Delegates
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderDelegates())
}

var haltedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

// progressBar renders done/total as a fixed-width bar.
func progressBar(done, total, width int) string {
	if width < 3 || total <= 0 {
		return ""
	}
	inner := width - 2
	filled := done * inner / total
	if filled > inner {
		filled = inner
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", inner-filled) + "]"
}

// renderHeader renders the top header section
func (m Model) renderHeader() string {
	// Calculate column widths (approximately 1/3 each, accounting for borders)
	colWidth := (m.width - 4) / 3
	rightColWidth := m.width - colWidth*2 - 4
	r := m.round

	forger := r.Forger
	if r.Moniker != "" {
		forger = fmt.Sprintf("%s (%s)", r.Forger, r.Moniker)
	}
	leftLines := []string{
		fmt.Sprintf("round=%d height=%d", r.Round, r.Height),
		fmt.Sprintf("block: %s", r.BlockID),
		fmt.Sprintf("forger: %s", forger),
		fmt.Sprintf("fees so far: %d", r.AccumulatedFees),
	}

	state := r.State
	if r.Halted {
		state = "HALTED"
	}
	middleLines := []string{
		fmt.Sprintf("state: %s", state),
		fmt.Sprintf("last finalized: %d", r.LastFinalized),
		fmt.Sprintf("fees=%d remainder=%d", r.LastFees, r.LastRemainder),
		fmt.Sprintf("outsiders: %d", r.Outsiders),
	}

	rightLines := []string{
		fmt.Sprintf("slots %d/%d", r.Forged, r.SlotCount),
		progressBar(r.Forged, r.SlotCount, rightColWidth-2),
		fmt.Sprintf("digest: %s", r.LastDigest),
		r.HaltReason,
	}

	var rows []string
	for i := range leftLines {
		left := padToWidth(truncateToWidth(leftLines[i], colWidth-2), colWidth-2)
		middle := padToWidth(truncateToWidth(middleLines[i], colWidth-2), colWidth-2)
		right := padToWidth(truncateToWidth(rightLines[i], rightColWidth-2), rightColWidth-2)
		if i == 0 && r.Halted {
			middle = haltedStyle.Render(middle)
		}
		rows = append(rows, fmt.Sprintf("│ %s │ %s │ %s │", left, middle, right))
	}

	topBorder := fmt.Sprintf("┌%s┬%s┬%s┐",
		strings.Repeat("─", colWidth),
		strings.Repeat("─", colWidth),
		strings.Repeat("─", rightColWidth))
	separator := fmt.Sprintf("├%s┴%s┴%s┤",
		strings.Repeat("─", colWidth),
		strings.Repeat("─", colWidth),
		strings.Repeat("─", rightColWidth))

	return topBorder + "\n" + strings.Join(rows, "\n") + "\n" + separator
}

// renderDelegates renders the delegates table
func (m Model) renderDelegates() string {
	if len(m.delegates) == 0 {
		return ""
	}

	// Calculate available height (subtract header height ~6 lines)
	availableHeight := m.height - 6
	if availableHeight <= 0 {
		return ""
	}

	cols := 3
	separatorWidth := runewidth.StringWidth("│")
	borderWidth := separatorWidth * 2
	colWidth := (m.width - borderWidth - separatorWidth*(cols-1)) / cols
	if colWidth < 24 {
		colWidth = 24 // Minimum column width
	}

	maxRows := availableHeight - 4 // Subtract borders and legend
	if maxRows <= 0 {
		return ""
	}
	rows := (len(m.delegates) + cols - 1) / cols
	if rows > maxRows {
		rows = maxRows
	}

	formatRow := func(cells []string) string {
		for i, cell := range cells {
			cells[i] = padToWidth(truncateToWidth(cell, colWidth), colWidth)
		}
		line := "│" + strings.Join(cells, "│")
		// Close the row at the terminal edge
		lineWidth := runewidth.StringWidth(line)
		if lineWidth < m.width-1 {
			line += strings.Repeat(" ", m.width-1-lineWidth)
		} else if lineWidth > m.width-1 {
			line = runewidth.Truncate(line, m.width-1, "")
		}
		return line + "│"
	}

	var lines []string
	for row := 0; row < rows; row++ {
		var cells []string
		for col := 0; col < cols; col++ {
			idx := row*cols + col
			if idx >= len(m.delegates) {
				cells = append(cells, "")
				continue
			}
			d := m.delegates[idx]
			name := d.Moniker
			if name == "" {
				// Use first 8 chars of address if no moniker
				name = truncateToWidth(d.Address, 11)
			}
			cells = append(cells, fmt.Sprintf("%3d %6d %4d/%-4d %s", idx+1, d.Vote, d.ProducedBlocks, d.MissedBlocks, name))
		}
		lines = append(lines, formatRow(cells))
	}

	bottomBorder := "└" + strings.Repeat("─", m.width-2) + "┘"
	return strings.Join(lines, "\n") + "\n" + separatorLine(m.width) + "\n" +
		formatInfoLine("Rank, Vote, Produced/Missed, Delegate", m.width) + "\n" + bottomBorder
}

// Run starts the TUI program
func Run(updateCh <-chan interface{}) error {
	m := NewModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Start goroutine to receive updates
	go func() {
		for data := range updateCh {
			if msg, ok := toMsg(data); ok {
				p.Send(msg)
			}
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

func toMsg(data interface{}) (tea.Msg, bool) {
	switch v := data.(type) {
	case RoundInfo:
		return RoundUpdateMsg{Round: v}, true
	case []DelegateInfo:
		return DelegatesUpdateMsg{Delegates: v}, true
	case RoundUpdateMsg, DelegatesUpdateMsg:
		return v, true
	}
	return nil, false
}
