package vault_test

import (
	"math/big"
	"testing"
	"time"

	"vaultd/pkg/oracle"
	"vaultd/pkg/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneDollar() *oracle.Static {
	return &oracle.Static{Price: big.NewInt(1_00000000), Decimals: 8}
}

func activeNames(r *vault.Registry) []string {
	out := []string{}
	for _, cfg := range r.ListSupported() {
		out = append(out, cfg.Asset)
	}
	return out
}

func TestRegistryNew(t *testing.T) {
	_, err := vault.NewRegistry(18, nil)
	assert.ErrorIs(t, err, vault.ErrZeroAddress)

	r, err := vault.NewRegistry(18, oneDollar())
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{vault.AssetNative}, activeNames(r))

	cfg, ok := r.Active(vault.AssetNative)
	require.True(t, ok)
	assert.Equal(t, uint8(18), cfg.Decimals)
}

func TestRegistryAdd(t *testing.T) {
	r, err := vault.NewRegistry(18, oneDollar())
	require.NoError(t, err)

	now := time.Now()

	_, err = r.Add("", oneDollar(), 6, now)
	assert.ErrorIs(t, err, vault.ErrZeroAddress)

	_, err = r.Add("usdt", nil, 6, now)
	assert.ErrorIs(t, err, vault.ErrZeroAddress)

	_, err = r.Add("usdt", oneDollar(), 6, now)
	require.NoError(t, err)
	assert.Equal(t, []string{vault.AssetNative, "usdt"}, activeNames(r))

	_, err = r.Add("usdt", oneDollar(), 6, now)
	assert.ErrorIs(t, err, vault.ErrAlreadySupported)

	// a source that cannot produce a valid reading is refused up front
	_, err = r.Add("broken", oracle.Unavailable{}, 6, now)
	assert.ErrorIs(t, err, vault.ErrInvalidPriceSource)

	stale := &oracle.Static{
		Price:     big.NewInt(1_00000000),
		Decimals:  8,
		UpdatedAt: now.Add(-2 * time.Hour),
	}
	_, err = r.Add("stale", stale, 6, now)
	assert.ErrorIs(t, err, vault.ErrInvalidPriceSource)

	assert.Equal(t, 2, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r, err := vault.NewRegistry(18, oneDollar())
	require.NoError(t, err)

	now := time.Now()
	for _, asset := range []string{"aaa", "bbb", "ccc"} {
		_, err = r.Add(asset, oneDollar(), 6, now)
		require.NoError(t, err)
	}

	_, err = r.Remove(vault.AssetNative)
	assert.ErrorIs(t, err, vault.ErrNativeAsset)

	_, err = r.Remove("doge")
	assert.ErrorIs(t, err, vault.ErrTokenNotSupported)

	// removal swaps the last entry into the hole
	_, err = r.Remove("aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{vault.AssetNative, "ccc", "bbb"}, activeNames(r))

	_, err = r.Remove("aaa")
	assert.ErrorIs(t, err, vault.ErrTokenNotSupported)

	// the entry survives deactivated
	cfg, ok := r.Get("aaa")
	require.True(t, ok)
	assert.False(t, cfg.Supported)
	_, ok = r.Active("aaa")
	assert.False(t, ok)

	// re-adding appends at the tail again
	_, err = r.Add("aaa", oneDollar(), 8, now)
	require.NoError(t, err)
	assert.Equal(t, []string{vault.AssetNative, "ccc", "bbb", "aaa"}, activeNames(r))

	cfg, ok = r.Active("aaa")
	require.True(t, ok)
	assert.Equal(t, uint8(8), cfg.Decimals)
}

func TestRegistryRemoveLast(t *testing.T) {
	r, err := vault.NewRegistry(18, oneDollar())
	require.NoError(t, err)

	_, err = r.Add("usdt", oneDollar(), 6, time.Now())
	require.NoError(t, err)

	// removing the tail entry needs no swap
	_, err = r.Remove("usdt")
	require.NoError(t, err)
	assert.Equal(t, []string{vault.AssetNative}, activeNames(r))
}
