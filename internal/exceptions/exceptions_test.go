package exceptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundledger/internal/fixedpoint"
	"roundledger/internal/ledgererrors"
)

func TestParse(t *testing.T) {
	table, err := Parse(map[string]RawOverride{
		"27040": {RewardsFactor: "2", FeesFactor: "2", FeesBonus: "10000000"},
		"5":     {RewardsFactor: "0.5"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []int64{5, 27040}, table.Rounds())

	o, ok := table.Lookup(27040)
	require.True(t, ok)
	assert.Equal(t, "2", o.RewardsFactor.String())
	assert.Equal(t, "10000000", o.FeesBonus.String())

	o, ok = table.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, "0.5", o.RewardsFactor.String())
	assert.Equal(t, "1", o.FeesFactor.String())
	assert.True(t, o.FeesBonus.IsZero())

	_, ok = table.Lookup(6)
	assert.False(t, ok)
}

func TestParseRejectsMalformedRecords(t *testing.T) {
	cases := map[string]map[string]RawOverride{
		"non numeric round": {"abc": {RewardsFactor: "1"}},
		"zero round":        {"0": {RewardsFactor: "1"}},
		"bad factor":        {"7": {RewardsFactor: "x"}},
		"negative bonus":    {"7": {FeesBonus: "-5"}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.NotZero(t, ledgererrors.KindOf(err))
		})
	}
}

func TestNewTableCopiesInput(t *testing.T) {
	src := map[int64]Override{1: {RewardsFactor: fixedpoint.One, FeesFactor: fixedpoint.One}}
	table := NewTable(src)
	delete(src, 1)

	_, ok := table.Lookup(1)
	assert.True(t, ok)
}

func TestNilTable(t *testing.T) {
	var table *Table
	_, ok := table.Lookup(1)
	assert.False(t, ok)
	assert.Zero(t, table.Len())
	assert.Empty(t, table.Rounds())
}
