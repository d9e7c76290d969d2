// Package delegates derives the active forging set of a round.
package delegates

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
)

// AddressFromPublicKey derives the account address of a hex-encoded ed25519
// public key.
func AddressFromPublicKey(publicKey string) (string, error) {
	b, err := hex.DecodeString(publicKey)
	if err != nil {
		return "", ledgererrors.Validationf("public key %q is not hex: %s", publicKey, err)
	}
	if len(b) != ed25519.PubKeySize {
		return "", ledgererrors.Validationf("public key %q has %d bytes, want %d", publicKey, len(b), ed25519.PubKeySize)
	}
	return ed25519.PubKey(b).Address().String(), nil
}

// ActiveList returns the forging order of round: the top slotCount delegates
// by vote weight (ties broken by public key), shuffled with the round seed.
func ActiveList(all []models.Account, round int64, slotCount int) []models.Account {
	ranked := make([]models.Account, 0, len(all))
	for _, d := range all {
		if d.IsDelegate {
			ranked = append(ranked, d)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Vote != ranked[j].Vote {
			return ranked[i].Vote > ranked[j].Vote
		}
		return ranked[i].PublicKey < ranked[j].PublicKey
	})
	if len(ranked) > slotCount {
		ranked = ranked[:slotCount]
	}
	shuffle(ranked, round)
	return ranked
}

// shuffle permutes list in place. Each SHA-256 seed drives four swaps and one
// position per seed is left in place, which keeps the order identical to the
// reference network's.
func shuffle(list []models.Account, round int64) {
	n := len(list)
	if n == 0 {
		return
	}
	seed := sha256.Sum256([]byte(strconv.FormatInt(round, 10)))
	for i := 0; i < n; i++ {
		for x := 0; x < 4 && i < n; i, x = i+1, x+1 {
			j := int(seed[x]) % n
			list[i], list[j] = list[j], list[i]
		}
		seed = sha256.Sum256(seed[:])
	}
}

// Outsiders returns the addresses of active delegates that did not forge in
// the round, sorted.
func Outsiders(active []models.Account, forgerKeys []string) []string {
	forged := make(map[string]struct{}, len(forgerKeys))
	for _, pk := range forgerKeys {
		forged[pk] = struct{}{}
	}
	var out []string
	for _, d := range active {
		if _, ok := forged[d.PublicKey]; !ok {
			out = append(out, d.Address)
		}
	}
	sort.Strings(out)
	return out
}
