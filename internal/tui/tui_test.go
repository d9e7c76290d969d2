package tui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(t *testing.T, w, h int) Model {
	t.Helper()
	next, _ := NewModel().Update(tea.WindowSizeMsg{Width: w, Height: h})
	return next.(Model)
}

func TestViewBeforeResize(t *testing.T) {
	assert.Equal(t, "Loading...", NewModel().View())
}

func TestUpdateStoresRoundAndDelegates(t *testing.T) {
	m := sized(t, 120, 30)

	next, cmd := m.Update(RoundUpdateMsg{Round: RoundInfo{Round: 7, SlotCount: 101, Forged: 50, Height: 656, State: "ACCUMULATING"}})
	assert.Nil(t, cmd)
	m = next.(Model)
	assert.Equal(t, int64(7), m.round.Round)

	next, _ = m.Update(DelegatesUpdateMsg{Delegates: []DelegateInfo{{Address: "ABCDEF0123456789", Moniker: "genesis", Vote: 10}}})
	m = next.(Model)
	require.Len(t, m.delegates, 1)

	view := m.View()
	assert.Contains(t, view, "round=7 height=656")
	assert.Contains(t, view, "slots 50/101")
	assert.Contains(t, view, "genesis")
	assert.Contains(t, view, "state: ACCUMULATING")
}

func TestViewLinesFitWidth(t *testing.T) {
	m := sized(t, 100, 20)
	var ds []DelegateInfo
	for i := 0; i < 40; i++ {
		ds = append(ds, DelegateInfo{Address: fmt.Sprintf("%040X", i), Moniker: strings.Repeat("名", i%7), Vote: int64(i)})
	}
	next, _ := m.Update(DelegatesUpdateMsg{Delegates: ds})
	m = next.(Model)
	next, _ = m.Update(RoundUpdateMsg{Round: RoundInfo{Round: 1, SlotCount: 3, Forged: 1, BlockID: strings.Repeat("A", 64)}})
	m = next.(Model)

	for _, line := range strings.Split(m.View(), "\n") {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 100, line)
	}
}

func TestHaltedState(t *testing.T) {
	m := sized(t, 120, 10)
	next, _ := m.Update(RoundUpdateMsg{Round: RoundInfo{State: "FINALIZING", Halted: true, HaltReason: "round 3 is already finalized"}})
	view := next.(Model).View()
	assert.Contains(t, view, "HALTED")
	assert.Contains(t, view, "already finalized")
}

func TestQuitKeys(t *testing.T) {
	m := NewModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[##..]", progressBar(1, 2, 6))
	assert.Equal(t, "[####]", progressBar(9, 2, 6))
	assert.Empty(t, progressBar(1, 0, 6))
}

func TestToMsg(t *testing.T) {
	msg, ok := toMsg(RoundInfo{Round: 2})
	require.True(t, ok)
	assert.Equal(t, RoundUpdateMsg{Round: RoundInfo{Round: 2}}, msg)

	msg, ok = toMsg([]DelegateInfo{{Address: "A"}})
	require.True(t, ok)
	assert.IsType(t, DelegatesUpdateMsg{}, msg)

	_, ok = toMsg(42)
	assert.False(t, ok)
}
