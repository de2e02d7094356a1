package vault_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"vaultd/pkg/auth"
	"vaultd/pkg/fixedpoint"
	"vaultd/pkg/oracle"
	"vaultd/pkg/transfer"
	"vaultd/pkg/vault"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(s string) *big.Int {
	return fixedpoint.DecimalToUSD(decimal.RequireFromString(s))
}

func amt(s string) *big.Int {
	a, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return a
}

// native: 18 decimals at $2000 on an 8-decimal feed
func nativeSource() *oracle.Static {
	return &oracle.Static{Price: big.NewInt(2000_00000000), Decimals: 8}
}

// usdt: 6 decimals at $1 on an 8-decimal feed
func usdtSource() *oracle.Static {
	return &oracle.Static{Price: big.NewInt(1_00000000), Decimals: 8}
}

func newTestVault(t *testing.T) (*vault.Worker, *transfer.Mock) {
	t.Helper()

	roles := auth.StaticRoles{}
	roles.Grant("admin", auth.RoleAdmin)
	roles.Grant("ops", auth.RoleOperator)

	mover := transfer.NewMock()

	w, err := vault.New(vault.Params{
		WithdrawalLimitUSD: usd("10000"),
		BankCapUSD:         usd("1000000"),
		NativeDecimals:     18,
		NativeSource:       nativeSource(),
	}, roles, mover)
	require.NoError(t, err)

	return w, mover
}

type captureEmitter struct {
	events   []string
	payloads []interface{}
}

func (c *captureEmitter) Emit(event string, payload interface{}) {
	c.events = append(c.events, event)
	c.payloads = append(c.payloads, payload)
}

func TestNewValidation(t *testing.T) {
	roles := auth.StaticRoles{}
	mover := transfer.NewMock()

	_, err := vault.New(vault.Params{
		WithdrawalLimitUSD: usd("1"),
		BankCapUSD:         usd("1"),
		NativeDecimals:     18,
	}, roles, mover)
	assert.ErrorIs(t, err, vault.ErrZeroAddress) // no native source

	_, err = vault.New(vault.Params{
		BankCapUSD:     usd("1"),
		NativeDecimals: 18,
		NativeSource:   nativeSource(),
	}, roles, mover)
	assert.ErrorIs(t, err, vault.ErrZeroAmount) // no withdrawal limit
}

func TestDepositNative(t *testing.T) {
	w, mover := newTestVault(t)
	em := &captureEmitter{}
	w.UseEmitter(em)

	// 1 native unit = $2000
	err := w.Deposit("alice", vault.AssetNative, amt("1000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, amt("1000000000000000000"), w.GetBalance("alice", vault.AssetNative))

	info := w.GetBankInfo()
	assert.Equal(t, usd("2000"), info.TotalValueUSD)
	assert.Equal(t, int64(1), info.DepositCount)
	assert.Equal(t, int64(0), info.WithdrawalCount)

	// native value arrives bundled with the call, no transfer-in
	assert.Empty(t, mover.Calls)

	require.Equal(t, []string{vault.EventDeposit}, em.events)
}

func TestDepositToken(t *testing.T) {
	w, mover := newTestVault(t)
	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))

	err := w.Deposit("alice", "usdt", amt("250000000")) // 250 usdt
	require.NoError(t, err)

	assert.Equal(t, amt("250000000"), w.GetBalance("alice", "usdt"))
	assert.Equal(t, usd("250"), w.GetBankInfo().TotalValueUSD)

	// custody precedes crediting
	call := mover.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "in", call.Dir)
	assert.Equal(t, "alice", call.Party)
	assert.Equal(t, "usdt", call.Asset)
}

func TestDepositValidation(t *testing.T) {
	w, _ := newTestVault(t)

	assert.ErrorIs(t, w.Deposit("alice", vault.AssetNative, big.NewInt(0)), vault.ErrZeroAmount)
	assert.ErrorIs(t, w.Deposit("alice", vault.AssetNative, big.NewInt(-5)), vault.ErrZeroAmount)
	assert.ErrorIs(t, w.Deposit("", vault.AssetNative, big.NewInt(1)), vault.ErrZeroAddress)
	assert.ErrorIs(t, w.Deposit("alice", "doge", big.NewInt(1)), vault.ErrTokenNotSupported)
}

func TestDepositTransferInFailed(t *testing.T) {
	w, mover := newTestVault(t)
	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))

	mover.FailIn["usdt"] = errors.New("allowance too low")

	err := w.Deposit("alice", "usdt", amt("1000000"))
	assert.ErrorIs(t, err, transfer.ErrTransferFailed)

	// nothing recorded
	assert.Equal(t, int64(0), w.GetBankInfo().DepositCount)
	assert.Equal(t, big.NewInt(0), w.GetBalance("alice", "usdt"))
}

func TestBankCapacity(t *testing.T) {
	roles := auth.StaticRoles{}
	roles.Grant("admin", auth.RoleAdmin)
	mover := transfer.NewMock()

	w, err := vault.New(vault.Params{
		WithdrawalLimitUSD: usd("10000"),
		BankCapUSD:         usd("3000"), // fits one native unit, not two
		NativeDecimals:     18,
		NativeSource:       nativeSource(),
	}, roles, mover)
	require.NoError(t, err)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("1000000000000000000")))

	before := w.GetBankInfo()
	err = w.Deposit("bob", vault.AssetNative, amt("1000000000000000000"))
	assert.ErrorIs(t, err, vault.ErrBankCapacityExceeded)

	// the failed call changed nothing
	after := w.GetBankInfo()
	assert.Equal(t, before.TotalValueUSD, after.TotalValueUSD)
	assert.Equal(t, before.DepositCount, after.DepositCount)
	assert.Equal(t, big.NewInt(0), w.GetBalance("bob", vault.AssetNative))

	// filling the vault exactly to the cap is fine
	require.NoError(t, w.Deposit("bob", vault.AssetNative, amt("500000000000000000")))
	assert.Equal(t, usd("3000"), w.GetBankInfo().TotalValueUSD)
}

func TestWithdraw(t *testing.T) {
	w, mover := newTestVault(t)
	em := &captureEmitter{}
	w.UseEmitter(em)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("2000000000000000000")))

	err := w.Withdraw("alice", vault.AssetNative, amt("500000000000000000")) // $1000
	require.NoError(t, err)

	assert.Equal(t, amt("1500000000000000000"), w.GetBalance("alice", vault.AssetNative))

	info := w.GetBankInfo()
	assert.Equal(t, usd("3000"), info.TotalValueUSD)
	assert.Equal(t, int64(1), info.WithdrawalCount)

	call := mover.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "out", call.Dir)
	assert.Equal(t, "alice", call.Party)

	assert.Equal(t, []string{vault.EventDeposit, vault.EventWithdrawal}, em.events)
}

func TestWithdrawLimit(t *testing.T) {
	w, _ := newTestVault(t)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("10000000000000000000"))) // $20000

	// $12000 > the $10000 per-withdrawal limit
	err := w.Withdraw("alice", vault.AssetNative, amt("6000000000000000000"))
	assert.ErrorIs(t, err, vault.ErrWithdrawalLimitExceeded)
	assert.Equal(t, amt("10000000000000000000"), w.GetBalance("alice", vault.AssetNative))

	// exactly at the limit passes
	require.NoError(t, w.Withdraw("alice", vault.AssetNative, amt("5000000000000000000")))
}

func TestWithdrawInsufficient(t *testing.T) {
	w, _ := newTestVault(t)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("1000000000000000000")))

	before := w.GetBankInfo()
	err := w.Withdraw("alice", vault.AssetNative, amt("1000000000000000001"))
	assert.ErrorIs(t, err, vault.ErrInsufficientBalance)

	assert.Equal(t, amt("1000000000000000000"), w.GetBalance("alice", vault.AssetNative))
	assert.Equal(t, before.TotalValueUSD, w.GetBankInfo().TotalValueUSD)
	assert.Equal(t, before.WithdrawalCount, w.GetBankInfo().WithdrawalCount)

	// never deposited
	err = w.Withdraw("bob", vault.AssetNative, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrInsufficientBalance)
}

func TestWithdrawTransferFailedRollsBack(t *testing.T) {
	w, mover := newTestVault(t)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("1000000000000000000")))
	before := w.GetBankInfo()

	mover.FailOut[vault.AssetNative] = errors.New("recipient rejected")

	err := w.Withdraw("alice", vault.AssetNative, amt("400000000000000000"))
	assert.ErrorIs(t, err, transfer.ErrTransferFailed)

	// the debit was rolled back exactly
	assert.Equal(t, amt("1000000000000000000"), w.GetBalance("alice", vault.AssetNative))
	after := w.GetBankInfo()
	assert.Equal(t, before.TotalValueUSD, after.TotalValueUSD)
	assert.Equal(t, before.WithdrawalCount, after.WithdrawalCount)
}

func TestStalePriceAborts(t *testing.T) {
	w, _ := newTestVault(t)

	stale := &oracle.Static{
		Price:     big.NewInt(1_00000000),
		Decimals:  8,
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}
	// registration fails, the validation read is stale
	err := w.AddAsset("admin", "oldcoin", stale, 6)
	assert.ErrorIs(t, err, vault.ErrInvalidPriceSource)

	// a feed that goes stale after registration aborts deposits
	src := usdtSource()
	require.NoError(t, w.AddAsset("admin", "usdt", src, 6))
	src.UpdatedAt = time.Now().Add(-2 * time.Hour)

	before := w.GetBankInfo()
	err = w.Deposit("alice", "usdt", amt("1000000"))
	assert.ErrorIs(t, err, oracle.ErrStalePrice)
	assert.Equal(t, before.TotalValueUSD, w.GetBankInfo().TotalValueUSD)
	assert.Equal(t, big.NewInt(0), w.GetBalance("alice", "usdt"))
}

func TestInvalidPriceAborts(t *testing.T) {
	w, _ := newTestVault(t)

	src := usdtSource()
	require.NoError(t, w.AddAsset("admin", "usdt", src, 6))
	src.Price = big.NewInt(0)

	err := w.Deposit("alice", "usdt", amt("1000000"))
	assert.ErrorIs(t, err, oracle.ErrInvalidPrice)
}

func TestConservation(t *testing.T) {
	w, _ := newTestVault(t)
	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))

	deposited := new(big.Int)
	withdrawn := new(big.Int)

	owners := []string{"alice", "bob", "carol"}
	for i, owner := range owners {
		in := big.NewInt(int64((i + 1) * 1_000_000))
		require.NoError(t, w.Deposit(owner, "usdt", in))
		deposited.Add(deposited, in)
	}
	for i, owner := range owners {
		out := big.NewInt(int64((i + 1) * 250_000))
		require.NoError(t, w.Withdraw(owner, "usdt", out))
		withdrawn.Add(withdrawn, out)
	}

	sum := new(big.Int)
	for _, owner := range owners {
		sum.Add(sum, w.GetBalance(owner, "usdt"))
	}
	assert.Equal(t, new(big.Int).Sub(deposited, withdrawn), sum)
}

func TestEmergencyWithdraw(t *testing.T) {
	w, mover := newTestVault(t)
	em := &captureEmitter{}
	w.UseEmitter(em)

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("1000000000000000000")))
	before := w.GetBankInfo()

	err := w.EmergencyWithdraw("mallory", vault.AssetNative, "rescue-addr", big.NewInt(42))
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	err = w.EmergencyWithdraw("admin", vault.AssetNative, "", big.NewInt(42))
	assert.ErrorIs(t, err, vault.ErrZeroAddress)

	err = w.EmergencyWithdraw("admin", vault.AssetNative, "rescue-addr", big.NewInt(42))
	require.NoError(t, err)

	// balances and totals are deliberately untouched
	assert.Equal(t, amt("1000000000000000000"), w.GetBalance("alice", vault.AssetNative))
	after := w.GetBankInfo()
	assert.Equal(t, before.TotalValueUSD, after.TotalValueUSD)
	assert.Equal(t, before.DepositCount, after.DepositCount)
	assert.Equal(t, before.WithdrawalCount, after.WithdrawalCount)

	call := mover.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "rescue-addr", call.Party)

	assert.Contains(t, em.events, vault.EventEmergencyWithdrawal)
}

func TestRemoveAndReAddAsset(t *testing.T) {
	w, _ := newTestVault(t)

	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))
	require.NoError(t, w.Deposit("alice", "usdt", amt("5000000")))

	require.NoError(t, w.RemoveAsset("admin", "usdt"))

	// residual balance stays readable, mutation is refused
	assert.Equal(t, amt("5000000"), w.GetBalance("alice", "usdt"))
	assert.ErrorIs(t, w.Deposit("alice", "usdt", amt("1")), vault.ErrTokenNotSupported)
	assert.ErrorIs(t, w.Withdraw("alice", "usdt", amt("1")), vault.ErrTokenNotSupported)

	// re-adding with a new precision takes the new configuration
	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 8))
	assert.Equal(t, amt("5000000"), w.GetBalance("alice", "usdt"))

	var found *vault.AssetConfig
	for _, cfg := range w.ListSupportedAssets() {
		if cfg.Asset == "usdt" {
			c := cfg
			found = &c
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, uint8(8), found.Decimals)
	assert.True(t, found.Supported)
}

func TestAssetAdminGate(t *testing.T) {
	w, _ := newTestVault(t)

	assert.ErrorIs(t, w.AddAsset("mallory", "usdt", usdtSource(), 6), auth.ErrUnauthorized)
	assert.ErrorIs(t, w.RemoveAsset("mallory", "usdt"), auth.ErrUnauthorized)

	// operator role does not grant registry mutation
	assert.ErrorIs(t, w.AddAsset("ops", "usdt", usdtSource(), 6), auth.ErrUnauthorized)

	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))
	assert.ErrorIs(t, w.AddAsset("admin", "usdt", usdtSource(), 6), vault.ErrAlreadySupported)

	assert.ErrorIs(t, w.RemoveAsset("admin", vault.AssetNative), vault.ErrNativeAsset)
}

func TestGetUserTotalUSD(t *testing.T) {
	w, _ := newTestVault(t)
	require.NoError(t, w.AddAsset("admin", "usdt", usdtSource(), 6))

	require.NoError(t, w.Deposit("alice", vault.AssetNative, amt("1000000000000000000"))) // $2000
	require.NoError(t, w.Deposit("alice", "usdt", amt("500000000")))                      // $500

	total, err := w.GetUserTotalUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usd("2500"), total)

	// removed assets drop out of the live total but keep their balance
	require.NoError(t, w.RemoveAsset("admin", "usdt"))
	total, err = w.GetUserTotalUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usd("2000"), total)

	total, err = w.GetUserTotalUSD("nobody")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), total)
}

func TestGetAssetPrice(t *testing.T) {
	w, _ := newTestVault(t)

	price, decimals, err := w.GetAssetPrice(vault.AssetNative)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2000_00000000), price)
	assert.Equal(t, uint8(8), decimals)

	_, _, err = w.GetAssetPrice("doge")
	assert.ErrorIs(t, err, vault.ErrTokenNotSupported)
}
