package roundchanges

import (
	"fmt"
	"strings"

	"roundledger/internal/ledgererrors"
)

// RemainderPolicy decides which slot, if any, is credited with the fees that
// do not divide evenly across the round.
type RemainderPolicy int

const (
	// RemainderLastForger credits the remainder to the forger of the last slot.
	RemainderLastForger RemainderPolicy = iota
	// RemainderNone never credits the remainder; it is only reported.
	RemainderNone
)

func (p RemainderPolicy) String() string {
	switch p {
	case RemainderLastForger:
		return "last-forger"
	case RemainderNone:
		return "none"
	default:
		return fmt.Sprintf("RemainderPolicy(%d)", int(p))
	}
}

// ParseRemainderPolicy parses "last-forger" or "none".
func ParseRemainderPolicy(s string) (RemainderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-forger", "last":
		return RemainderLastForger, nil
	case "none":
		return RemainderNone, nil
	default:
		return 0, ledgererrors.Validationf("unknown fees remainder policy %q", s)
	}
}

// Credit is an amount owed to one forger.
type Credit struct {
	Slot      int
	PublicKey string
	Changes   Changes
}

// Distribution is the complete set of credits for one round.
type Distribution struct {
	Slots []Credit
	// Remainder is the undivided fee amount. RemainderSlot is -1 when it is
	// not credited to anybody.
	Remainder     int64
	RemainderSlot int
}

// Distribute computes every slot's credit and places the remainder according
// to policy. forgers lists the generator public keys in forging order.
func Distribute(c *Calculator, forgers []string, policy RemainderPolicy) (*Distribution, error) {
	if len(forgers) != len(c.rewards) {
		return nil, ledgererrors.Consistencyf("round %d has %d forgers but %d rewards", c.round, len(forgers), len(c.rewards))
	}
	if int64(len(forgers)) != c.slotCount {
		return nil, ledgererrors.Consistencyf("round %d has %d forgers, want %d", c.round, len(forgers), c.slotCount)
	}
	d := &Distribution{RemainderSlot: -1}
	var feesSum int64
	for i, pk := range forgers {
		ch, err := c.At(i)
		if err != nil {
			return nil, err
		}
		feesSum += ch.Fees
		d.Slots = append(d.Slots, Credit{Slot: i, PublicKey: pk, Changes: ch})
		d.Remainder = ch.FeesRemaining
	}

	if feesSum+d.Remainder != c.totalFees {
		return nil, ledgererrors.Consistencyf("round %d fee distribution %d + %d does not sum to %d",
			c.round, feesSum, d.Remainder, c.totalFees)
	}

	if policy == RemainderLastForger && d.Remainder > 0 {
		d.RemainderSlot = len(forgers) - 1
	}
	return d, nil
}

// Credited returns the total amount the distribution moves into balances.
func (d *Distribution) Credited() int64 {
	var sum int64
	for _, s := range d.Slots {
		sum += s.Changes.Balance
	}
	if d.RemainderSlot >= 0 {
		sum += d.Remainder
	}
	return sum
}
