package delegates

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
)

func makeDelegates(n int) []models.Account {
	out := make([]models.Account, n)
	for i := range out {
		out[i] = models.Account{
			Address:    fmt.Sprintf("addr%02d", i),
			PublicKey:  fmt.Sprintf("%064x", i),
			IsDelegate: true,
			Vote:       int64(i * 10),
		}
	}
	return out
}

func TestAddressFromPublicKey(t *testing.T) {
	pk := strings.Repeat("ab", 32)
	addr, err := AddressFromPublicKey(pk)
	require.NoError(t, err)
	assert.Len(t, addr, 40)

	again, err := AddressFromPublicKey(pk)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	_, err = AddressFromPublicKey("zz")
	assert.True(t, ledgererrors.IsValidation(err))
	_, err = AddressFromPublicKey("abcd")
	assert.True(t, ledgererrors.IsValidation(err))
}

func TestActiveListTakesTopByVote(t *testing.T) {
	all := makeDelegates(10)
	all = append(all, models.Account{Address: "voter", Vote: 1 << 40})

	active := ActiveList(all, 7, 5)
	require.Len(t, active, 5)

	var addrs []string
	for _, d := range active {
		addrs = append(addrs, d.Address)
	}
	sort.Strings(addrs)
	assert.Equal(t, []string{"addr05", "addr06", "addr07", "addr08", "addr09"}, addrs)
}

func TestActiveListIsDeterministicPerRound(t *testing.T) {
	all := makeDelegates(101)

	a := ActiveList(all, 12, 101)
	b := ActiveList(all, 12, 101)
	assert.Equal(t, a, b)

	c := ActiveList(all, 13, 101)
	assert.NotEqual(t, a, c)
	assert.ElementsMatch(t, a, c)
}

func TestActiveListDoesNotMutateInput(t *testing.T) {
	all := makeDelegates(8)
	before := append([]models.Account(nil), all...)
	ActiveList(all, 3, 8)
	assert.Equal(t, before, all)
}

func TestOutsiders(t *testing.T) {
	active := makeDelegates(4)
	forgers := []string{active[0].PublicKey, active[2].PublicKey, active[2].PublicKey}

	assert.Equal(t, []string{"addr01", "addr03"}, Outsiders(active, forgers))
	assert.Empty(t, Outsiders(active[:1], forgers))
}
