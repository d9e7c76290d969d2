package collector

import (
	"strconv"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/pkg/errors"
)

// TotalFee sums the "fee" attributes of the tx events of a block in denom.
// Transactions that failed still paid their fee.
func TotalFee(txs []*abci.ExecTxResult, denom string) (int64, error) {
	var total int64
	for i, tx := range txs {
		if tx == nil {
			continue
		}
		for _, ev := range tx.Events {
			if ev.Type != "tx" {
				continue
			}
			for _, attr := range ev.Attributes {
				if attr.Key != "fee" {
					continue
				}
				amount, err := AmountOf(attr.Value, denom)
				if err != nil {
					return 0, errors.WithMessagef(err, "tx %d fee", i)
				}
				if total+amount < total {
					return 0, errors.Errorf("tx %d fee overflows", i)
				}
				total += amount
			}
		}
	}
	return total, nil
}

// Reward returns the minted amount of a block, read from the "amount"
// attribute of its "mint" event. Chains without inflation report 0.
func Reward(events []abci.Event, denom string) (int64, error) {
	for _, ev := range events {
		if ev.Type != "mint" {
			continue
		}
		for _, attr := range ev.Attributes {
			if attr.Key != "amount" {
				continue
			}
			v := strings.TrimSpace(attr.Value)
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				if n < 0 {
					return 0, errors.Errorf("negative mint amount %q", v)
				}
				return n, nil
			}
			return AmountOf(v, denom)
		}
	}
	return 0, nil
}

// AmountOf extracts the amount of denom from a coin list such as
// "100stake,5uatom". A missing denom yields 0.
func AmountOf(coins, denom string) (int64, error) {
	coins = strings.TrimSpace(coins)
	if coins == "" {
		return 0, nil
	}
	for _, coin := range strings.Split(coins, ",") {
		coin = strings.TrimSpace(coin)
		i := 0
		for i < len(coin) && coin[i] >= '0' && coin[i] <= '9' {
			i++
		}
		if i == 0 || i == len(coin) {
			return 0, errors.Errorf("invalid coin %q", coin)
		}
		if coin[i:] != denom {
			continue
		}
		n, err := strconv.ParseInt(coin[:i], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid coin %q", coin)
		}
		return n, nil
	}
	return 0, nil
}
