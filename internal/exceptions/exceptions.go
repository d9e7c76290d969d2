// Package exceptions holds the per-round reward and fee overrides baked into
// the genesis configuration.
package exceptions

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"roundledger/internal/fixedpoint"
	"roundledger/internal/ledgererrors"
)

// Override corrects the rewards and fees of a single round.
type Override struct {
	RewardsFactor fixedpoint.Decimal
	FeesFactor    fixedpoint.Decimal
	FeesBonus     fixedpoint.Decimal
}

// RawOverride is the configuration-file shape of an Override.
type RawOverride struct {
	RewardsFactor string `mapstructure:"rewards_factor" json:"rewards_factor"`
	FeesFactor    string `mapstructure:"fees_factor" json:"fees_factor"`
	FeesBonus     string `mapstructure:"fees_bonus" json:"fees_bonus"`
}

// Table is an immutable round -> Override lookup. A nil *Table is a valid
// empty table.
type Table struct {
	rounds map[int64]Override
}

// NewTable copies overrides into a new table.
func NewTable(overrides map[int64]Override) *Table {
	rounds := make(map[int64]Override, len(overrides))
	for r, o := range overrides {
		rounds[r] = o
	}
	return &Table{rounds: rounds}
}

// Parse builds a table from raw configuration records keyed by round number.
// Missing factors default to 1 and a missing bonus defaults to 0.
func Parse(raw map[string]RawOverride) (*Table, error) {
	overrides := make(map[int64]Override, len(raw))
	for key, r := range raw {
		round, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || round <= 0 {
			return nil, ledgererrors.Validationf("invalid exception round %q", key)
		}
		o, err := r.parse()
		if err != nil {
			return nil, errors.WithMessagef(err, "exception for round %d", round)
		}
		overrides[round] = o
	}
	return NewTable(overrides), nil
}

func (r RawOverride) parse() (Override, error) {
	parse := func(s string, def fixedpoint.Decimal) (fixedpoint.Decimal, error) {
		if strings.TrimSpace(s) == "" {
			return def, nil
		}
		return fixedpoint.ParseDecimal(s)
	}
	rewards, err := parse(r.RewardsFactor, fixedpoint.One)
	if err != nil {
		return Override{}, err
	}
	fees, err := parse(r.FeesFactor, fixedpoint.One)
	if err != nil {
		return Override{}, err
	}
	bonus, err := parse(r.FeesBonus, fixedpoint.Zero)
	if err != nil {
		return Override{}, err
	}
	return Override{RewardsFactor: rewards, FeesFactor: fees, FeesBonus: bonus}, nil
}

// Lookup returns the override for round, if any.
func (t *Table) Lookup(round int64) (Override, bool) {
	if t == nil {
		return Override{}, false
	}
	o, ok := t.rounds[round]
	return o, ok
}

// Len returns the number of overridden rounds.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rounds)
}

// Rounds returns the overridden round numbers in ascending order.
func (t *Table) Rounds() []int64 {
	if t == nil {
		return nil
	}
	out := make([]int64, 0, len(t.rounds))
	for r := range t.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
