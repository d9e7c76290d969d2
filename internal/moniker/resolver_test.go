package moniker

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cometbft/cometbft/crypto/ed25519"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidators struct {
	set   []*cmttypes.Validator
	calls int
	err   error
}

func (f *fakeValidators) Validators(_ context.Context, _ *int64, page, perPage *int) (*rpccoretypes.ResultValidators, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := (*page - 1) * *perPage
	end := start + *perPage
	if start > len(f.set) {
		start = len(f.set)
	}
	if end > len(f.set) {
		end = len(f.set)
	}
	return &rpccoretypes.ResultValidators{Validators: f.set[start:end], Count: end - start, Total: len(f.set)}, nil
}

func newValidators(n int) []*cmttypes.Validator {
	out := make([]*cmttypes.Validator, n)
	for i := range out {
		out[i] = cmttypes.NewValidator(ed25519.GenPrivKey().PubKey(), 10)
	}
	return out
}

func TestPublicKeyResolvesAndCaches(t *testing.T) {
	src := &fakeValidators{set: newValidators(3)}
	r := NewResolver(src, "", nil)
	ctx := context.Background()

	v := src.set[1]
	pk, err := r.PublicKey(ctx, v.Address.String())
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(v.PubKey.Bytes()), pk)

	_, err = r.PublicKey(ctx, "0x"+v.Address.String())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, r.Moniker(v.Address.String()))
}

func TestPublicKeyUnknownAddress(t *testing.T) {
	src := &fakeValidators{set: newValidators(1)}
	r := NewResolver(src, "", nil)

	_, err := r.PublicKey(context.Background(), "ABCDEF")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAddress))
}

func TestPublicKeyRPCFailure(t *testing.T) {
	src := &fakeValidators{err: errors.New("connection refused")}
	r := NewResolver(src, "", nil)

	_, err := r.PublicKey(context.Background(), "ABCDEF")
	assert.Error(t, err)
}

func TestPaginatedValidators(t *testing.T) {
	src := &fakeValidators{set: newValidators(150)}
	r := NewResolver(src, "", nil)

	pk, err := r.PublicKey(context.Background(), src.set[120].Address.String())
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(src.set[120].PubKey.Bytes()), pk)
	assert.Equal(t, 2, src.calls)
}

func TestMonikersFromREST(t *testing.T) {
	src := &fakeValidators{set: newValidators(2)}
	key := base64.StdEncoding.EncodeToString(src.set[0].PubKey.Bytes())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/cosmos/staking/v1beta1/validators", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if req.URL.Query().Get("status") != "BOND_STATUS_BONDED" {
			fmt.Fprint(w, `{"validators":[]}`)
			return
		}
		fmt.Fprintf(w, `{"validators":[{"description":{"moniker":"genesis"},"consensus_pubkey":{"@type":"/cosmos.crypto.ed25519.PubKey","key":%q}}]}`, key)
	}))
	defer srv.Close()

	r := NewResolver(src, srv.URL+"/", nil)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, "genesis", r.Moniker(src.set[0].Address.String()))
	assert.Empty(t, r.Moniker(src.set[1].Address.String()))

	var nilResolver *Resolver
	assert.Empty(t, nilResolver.Moniker("ABC"))
}

func TestCanonicalBase64(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}), canonicalBase64(raw))
	assert.Equal(t, "!!", canonicalBase64("!!"))
}
