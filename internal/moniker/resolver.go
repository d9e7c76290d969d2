// Package moniker maps the consensus addresses found in block headers to
// forger public keys and human-readable usernames.
package moniker

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"roundledger/internal/logger"
)

// ValidatorSource is the part of the CometBFT RPC client the resolver needs.
type ValidatorSource interface {
	Validators(ctx context.Context, height *int64, page, perPage *int) (*rpccoretypes.ResultValidators, error)
}

// ErrUnknownAddress is returned when no validator has the requested address.
var ErrUnknownAddress = errors.New("unknown consensus address")

// Resolver fetches and caches the validator set from RPC /validators and the
// monikers from REST /cosmos/staking/v1beta1/validators, matched by pub_key.
type Resolver struct {
	validators ValidatorSource
	rest       *resty.Client
	log        *logger.Logger

	mu        sync.RWMutex
	keys      map[string]string // hex_cons_addr -> hex pub_key
	monikers  map[string]string // hex_cons_addr -> moniker
	lastFetch time.Time
	ttl       time.Duration
}

// NewResolver creates a resolver. Without appURL monikers stay empty.
func NewResolver(validators ValidatorSource, appURL string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	r := &Resolver{
		validators: validators,
		log:        log,
		keys:       map[string]string{},
		monikers:   map[string]string{},
		ttl:        30 * time.Minute, // Validators change rarely
	}
	if appURL != "" {
		r.rest = resty.New().
			SetBaseURL(strings.TrimSuffix(appURL, "/")).
			SetTimeout(10 * time.Second).
			SetRetryCount(2)
	}
	return r
}

func normalize(consAddrHex string) string {
	return strings.TrimPrefix(strings.ToUpper(consAddrHex), "0X")
}

// PublicKey returns the hex ed25519 public key of the validator with the
// given consensus address. A miss forces a refresh before giving up, since a
// new validator may have joined.
func (r *Resolver) PublicKey(ctx context.Context, consAddrHex string) (string, error) {
	key := normalize(consAddrHex)
	r.mu.RLock()
	pk, ok := r.keys[key]
	stale := time.Since(r.lastFetch) > r.ttl
	r.mu.RUnlock()
	if ok && !stale {
		return pk, nil
	}

	if err := r.Refresh(ctx); err != nil {
		if ok {
			r.log.Warnf("moniker resolver: using cached key for %s: %v", key, err)
			return pk, nil
		}
		return "", err
	}

	r.mu.RLock()
	pk, ok = r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return "", errors.Wrap(ErrUnknownAddress, key)
	}
	return pk, nil
}

// Moniker returns the cached moniker of a consensus address, or "".
func (r *Resolver) Moniker(consAddrHex string) string {
	if r == nil || consAddrHex == "" {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monikers[normalize(consAddrHex)]
}

// Refresh reloads the validator set and, when configured, the monikers.
func (r *Resolver) Refresh(ctx context.Context) error {
	vals, err := r.fetchRPCValidators(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch RPC validators")
	}
	r.log.Printf("moniker resolver: fetched %d validators from RPC", len(vals))

	keys := make(map[string]string, len(vals))
	byPubKey := make(map[string]string, len(vals)) // base64 pub_key -> addr
	for _, v := range vals {
		addr := normalize(v.address)
		keys[addr] = hex.EncodeToString(v.pubKey)
		byPubKey[base64.StdEncoding.EncodeToString(v.pubKey)] = addr
	}

	monikers := make(map[string]string)
	if r.rest != nil {
		rest, err := r.fetchRESTValidators(ctx)
		if err != nil {
			// Monikers are cosmetic; keep the previous ones.
			r.log.Warnf("moniker resolver: failed to fetch REST validators: %v", err)
			r.mu.RLock()
			for k, v := range r.monikers {
				monikers[k] = v
			}
			r.mu.RUnlock()
		}
		matched := 0
		for _, v := range rest {
			if addr, ok := byPubKey[canonicalBase64(v.key)]; ok {
				monikers[addr] = v.moniker
				matched++
			}
		}
		r.log.Printf("moniker resolver: matched %d/%d RPC validators with REST API", matched, len(vals))
	}

	r.mu.Lock()
	r.keys = keys
	r.monikers = monikers
	r.lastFetch = time.Now()
	r.mu.Unlock()
	return nil
}

// canonicalBase64 re-encodes a base64 key so padding differences do not
// prevent a match.
func canonicalBase64(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return s
		}
	}
	return base64.StdEncoding.EncodeToString(b)
}

type validator struct {
	address string
	pubKey  []byte
}

func (r *Resolver) fetchRPCValidators(ctx context.Context) ([]validator, error) {
	var out []validator
	perPage := 100
	for page := 1; ; page++ {
		p := page
		res, err := r.validators.Validators(ctx, nil, &p, &perPage)
		if err != nil {
			return nil, err
		}
		for _, v := range res.Validators {
			if v == nil || v.PubKey == nil {
				continue
			}
			out = append(out, validator{address: v.Address.String(), pubKey: v.PubKey.Bytes()})
		}
		if len(res.Validators) == 0 || len(out) >= res.Total {
			return out, nil
		}
	}
}

type restValidator struct {
	moniker string
	key     string
}

type restValidatorsResp struct {
	Validators []struct {
		Description struct {
			Moniker string `json:"moniker"`
		} `json:"description"`
		OperatorAddress string `json:"operator_address"`
		ConsensusPubkey struct {
			Type string `json:"@type"`
			Key  string `json:"key"`
		} `json:"consensus_pubkey"`
	} `json:"validators"`
}

func (r *Resolver) fetchRESTValidators(ctx context.Context) ([]restValidator, error) {
	// Request validators from all statuses (bonded, unbonding, unbonded) to get complete list
	statuses := []string{"BOND_STATUS_BONDED", "BOND_STATUS_UNBONDING", "BOND_STATUS_UNBONDED"}

	seen := make(map[string]restValidator) // pub_key -> validator
	var lastErr error
	for _, status := range statuses {
		var payload restValidatorsResp
		resp, err := r.rest.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{"pagination.limit": "100", "status": status}).
			SetResult(&payload).
			Get("/cosmos/staking/v1beta1/validators")
		if err != nil {
			lastErr = err
			continue
		}
		if resp.IsError() {
			lastErr = errors.Errorf("status %s: %s", status, resp.Status())
			continue
		}
		for _, v := range payload.Validators {
			if v.ConsensusPubkey.Key != "" {
				seen[v.ConsensusPubkey.Key] = restValidator{moniker: v.Description.Moniker, key: v.ConsensusPubkey.Key}
			}
		}
	}
	if len(seen) == 0 && lastErr != nil {
		return nil, lastErr
	}

	out := make([]restValidator, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	return out, nil
}
