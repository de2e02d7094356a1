package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"path"
	"strings"
	"sync"
	"time"

	"vaultd/pkg/auth"
	"vaultd/pkg/config"
	"vaultd/pkg/filedb"
	"vaultd/pkg/fixedpoint"
	"vaultd/pkg/oracle"
	"vaultd/pkg/transfer"
	"vaultd/pkg/xlog"

	"github.com/google/btree"
)

var logger = xlog.GetLogger()

// Params are the construction parameters of the ledger. The two caps are
// 6-decimal USD values and stay immutable for the worker's lifetime.
type Params struct {
	WithdrawalLimitUSD *big.Int
	BankCapUSD         *big.Int

	NativeDecimals uint8
	NativeSource   oracle.Source
}

// Worker is the vault ledger
type Worker struct {
	Name  string
	State string

	LogID int64 // ID of the latest journaled mutation

	TotalValueUSD   *big.Int // running 6-decimal USD total, historical attribution
	DepositCount    int64
	WithdrawalCount int64

	LatestMsgSeq uint64 // ID of the latest NATS message received
	SavedLogID   int64  // ID of the log already processed (written to MySQL)

	limitUSD *big.Int
	capUSD   *big.Int

	registry *Registry
	authz    auth.Authorizer
	mover    transfer.Mover

	balances *btree.BTree // *balanceItem ordered by (owner, asset)

	mu  sync.Mutex
	ch  chan VaultMsg // requests from the NATS subscriber, handled sequentially
	fdb *filedb.Filedb
	em  Emitter

	now func() time.Time
}

// New returns a Worker instance. The native price source is required,
// deposits of the native asset are valued through it from the first call.
func New(p Params, authz auth.Authorizer, mover transfer.Mover) (w *Worker, err error) {
	if p.WithdrawalLimitUSD == nil || p.WithdrawalLimitUSD.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if p.BankCapUSD == nil || p.BankCapUSD.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if authz == nil || mover == nil {
		return nil, ErrZeroAddress
	}

	registry, err := NewRegistry(p.NativeDecimals, p.NativeSource)
	if err != nil {
		return nil, err
	}

	w = &Worker{
		Name: "Vault",

		TotalValueUSD: new(big.Int),

		limitUSD: new(big.Int).Set(p.WithdrawalLimitUSD),
		capUSD:   new(big.Int).Set(p.BankCapUSD),

		registry: registry,
		authz:    authz,
		mover:    mover,

		balances: btree.New(2),

		ch: make(chan VaultMsg, 1024),

		now: time.Now,

		State: "Init",
	}

	logger.Info("vault worker created")
	return
}

// UseJournal opens the append-only journal. Without it the worker keeps
// state in memory only (tests run this way).
func (w *Worker) UseJournal() (err error) {
	if w.fdb != nil {
		return nil
	}

	fdb, err := filedb.New(path.Join(config.Shared.DataDir, "filedb", strings.ToLower(w.Name)+".log"))
	if err != nil {
		return err
	}

	fdb.ToMySQLHandler = w.ParseAndWriteLogs
	w.fdb = fdb

	// resume LogID from the last journal line
	txt, err := fdb.ReadLastLine()
	if err != nil {
		return err
	}
	if txt != "" {
		vl := VaultLog{}
		err = json.Unmarshal([]byte(txt), &vl)
		if err != nil {
			return err
		}
		w.LogID = vl.LogID
		w.LatestMsgSeq = vl.MsgSeq
	}

	return nil
}

// UseEmitter wires the boundary-event publisher.
func (w *Worker) UseEmitter(em Emitter) {
	w.em = em
}

// Run starts the service
//
//	a. Main thread: receive requests from the NATS subscriber via `chan VaultMsg`,
//	   process them sequentially (validate, mutate balances in memory, write journal)
//	a1. Writer handles all journal lines before the main thread starts
//	a2. Load balances, registry, totals and counters from MySQL
//	b. natscli thread: subscribe to deposit/withdraw requests, forward to the main thread
//	c. writer thread: tail the journal, write to MySQL in batches
func (w *Worker) Run() (err error) {
	if w.fdb == nil {
		if err = w.UseJournal(); err != nil {
			return
		}
	}

	go w.StartWriter()

	// wait for mysql.savedLogID == w.LogID(last logID in journal)
	w.State = "WaitForFiledb"

	err = w.WaitForFiledb()
	if err != nil {
		return
	}

	w.State = "LoadingState"
	err = w.LoadState()
	if err != nil {
		return
	}

	w.State = "Working"

	go w.StartSubNats()

	err = w.HandleVaultMsgs()

	return
}

// CheckoutBalance retrieves the (owner, asset) balance entry
//
//	If it doesn't exist, create one. Callers hold w.mu.
func (w *Worker) CheckoutBalance(owner, asset string) *balanceItem {
	key := &balanceItem{Owner: owner, Asset: asset}
	if it := w.balances.Get(key); it != nil {
		return it.(*balanceItem)
	}
	key.Amount = new(big.Int)
	w.balances.ReplaceOrInsert(key)
	return key
}

// usdValue reads and validates the asset's price, then converts amount
// to 6-decimal USD. The reading is consumed once and never cached.
func (w *Worker) usdValue(cfg *AssetConfig, amount *big.Int) (v *big.Int, err error) {
	reading, err := cfg.Source.ReadPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriceSource, err)
	}
	err = oracle.Validate(reading, w.now())
	if err != nil {
		return nil, err
	}
	return fixedpoint.AssetToUSD(amount, reading.Price, cfg.Decimals, reading.Decimals)
}

func wrapTransferErr(err error) error {
	if errors.Is(err, transfer.ErrTransferFailed) {
		return err
	}
	return fmt.Errorf("%w: %s", transfer.ErrTransferFailed, err)
}

// Deposit credits amount of asset to owner.
//
//	For non-native assets value is pulled into custody before the balance
//	is credited, a failed transfer is never recorded as a deposit. All
//	validation runs before the transfer so a rejected deposit moves nothing.
func (w *Worker) Deposit(owner, asset string, amount *big.Int) (err error) {
	if owner == "" {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, ok := w.registry.Active(asset)
	if !ok {
		return ErrTokenNotSupported
	}

	value, err := w.usdValue(cfg, amount)
	if err != nil {
		return
	}

	newTotal := new(big.Int).Add(w.TotalValueUSD, value)
	if newTotal.Cmp(w.capUSD) > 0 {
		return ErrBankCapacityExceeded
	}

	// funds must be in custody before the balance is credited
	if asset != AssetNative {
		err = w.mover.TransferIn(owner, asset, amount)
		if err != nil {
			return wrapTransferErr(err)
		}
	}

	// update data in memory
	bal := w.CheckoutBalance(owner, asset)
	bal.Amount.Add(bal.Amount, amount)
	prevTotal := w.TotalValueUSD
	w.TotalValueUSD = newTotal
	w.DepositCount++
	w.LogID++

	bl := BalanceLog{
		LogIndex:        1,
		Reason:          EventDeposit,
		Owner:           owner,
		Asset:           asset,
		AmountChange:    amount.String(),
		AmountNew:       bal.Amount.String(),
		ValueUSD:        fixedpoint.USDToDecimal(value).String(),
		TotalUSDNew:     fixedpoint.USDToDecimal(w.TotalValueUSD).String(),
		DepositCount:    w.DepositCount,
		WithdrawalCount: w.WithdrawalCount,
	}

	err = w.journal(VaultLog{BalanceLogs: []BalanceLog{bl}})
	if err != nil {
		// an unjournaled credit would vanish on reload, undo it and hand
		// the funds back
		bal.Amount.Sub(bal.Amount, amount)
		w.TotalValueUSD = prevTotal
		w.DepositCount--
		w.LogID--
		if asset != AssetNative {
			if terr := w.mover.TransferOut(owner, asset, amount); terr != nil {
				logger.Errorf("deposit refund failed for owner:%s asset:%s amount:%s with err:%s",
					owner, asset, amount, terr)
			}
		}
		return
	}

	w.emit(EventDeposit, bl)

	return
}

// Withdraw debits amount of asset from owner and pays it out.
//
//	The balance is debited before the external transfer, a re-entrant
//	call during the transfer sees the already-decremented balance. A
//	failed transfer rolls the debit back exactly.
func (w *Worker) Withdraw(owner, asset string, amount *big.Int) (err error) {
	if owner == "" {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, ok := w.registry.Active(asset)
	if !ok {
		return ErrTokenNotSupported
	}

	it := w.balances.Get(&balanceItem{Owner: owner, Asset: asset})
	if it == nil || amount.Cmp(it.(*balanceItem).Amount) > 0 {
		return ErrInsufficientBalance
	}
	bal := it.(*balanceItem)

	value, err := w.usdValue(cfg, amount)
	if err != nil {
		return
	}
	if value.Cmp(w.limitUSD) > 0 {
		return ErrWithdrawalLimitExceeded
	}

	// debit strictly before the transfer
	bal.Amount.Sub(bal.Amount, amount)
	prevTotal := w.TotalValueUSD
	if value.Cmp(prevTotal) > 0 {
		// the live value can exceed the historical attribution, clamp at zero
		w.TotalValueUSD = new(big.Int)
	} else {
		w.TotalValueUSD = new(big.Int).Sub(prevTotal, value)
	}
	w.WithdrawalCount++
	w.LogID++

	bl := BalanceLog{
		LogIndex:        1,
		Reason:          EventWithdrawal,
		Owner:           owner,
		Asset:           asset,
		AmountChange:    "-" + amount.String(),
		AmountNew:       bal.Amount.String(),
		ValueUSD:        fixedpoint.USDToDecimal(value).String(),
		TotalUSDNew:     fixedpoint.USDToDecimal(w.TotalValueUSD).String(),
		DepositCount:    w.DepositCount,
		WithdrawalCount: w.WithdrawalCount,
	}

	// the debit must be durable before any value leaves custody. A
	// journaled debit without a payout is recoverable, a payout without a
	// journaled debit pays the same funds twice after a reload.
	err = w.journal(VaultLog{BalanceLogs: []BalanceLog{bl}})
	if err != nil {
		bal.Amount.Add(bal.Amount, amount)
		w.TotalValueUSD = prevTotal
		w.WithdrawalCount--
		w.LogID--
		return
	}

	err = w.mover.TransferOut(owner, asset, amount)
	if err != nil {
		err = wrapTransferErr(err)

		// the payout failed after the debit was journaled, revert the
		// memory state and journal a compensating entry
		bal.Amount.Add(bal.Amount, amount)
		w.TotalValueUSD = prevTotal
		w.WithdrawalCount--
		w.LogID++

		rb := BalanceLog{
			LogIndex:        1,
			Reason:          EventWithdrawalReverted,
			Owner:           owner,
			Asset:           asset,
			AmountChange:    amount.String(),
			AmountNew:       bal.Amount.String(),
			ValueUSD:        fixedpoint.USDToDecimal(value).String(),
			TotalUSDNew:     fixedpoint.USDToDecimal(w.TotalValueUSD).String(),
			DepositCount:    w.DepositCount,
			WithdrawalCount: w.WithdrawalCount,
		}
		if jerr := w.journal(VaultLog{BalanceLogs: []BalanceLog{rb}}); jerr != nil {
			logger.Errorf("withdraw revert journal failed for owner:%s asset:%s with err:%s",
				owner, asset, jerr)
		}
		return
	}

	w.emit(EventWithdrawal, bl)

	return
}

// EmergencyWithdraw moves funds out of custody without touching any
// recorded balance or the USD total. Admin-only escape hatch for
// recovering misdirected or stuck funds, it deliberately desynchronizes
// TotalValueUSD from actual custody.
func (w *Worker) EmergencyWithdraw(caller, asset, recipient string, amount *big.Int) (err error) {
	if !w.authz.HasRole(caller, auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}
	if recipient == "" {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	err = w.mover.TransferOut(recipient, asset, amount)
	if err != nil {
		return wrapTransferErr(err)
	}

	w.LogID++
	defer func() {
		if err != nil {
			w.LogID--
		}
	}()

	bl := BalanceLog{
		LogIndex:        1,
		Reason:          EventEmergencyWithdrawal,
		Owner:           recipient,
		Asset:           asset,
		AmountChange:    "-" + amount.String(),
		TotalUSDNew:     fixedpoint.USDToDecimal(w.TotalValueUSD).String(),
		DepositCount:    w.DepositCount,
		WithdrawalCount: w.WithdrawalCount,
	}

	err = w.journal(VaultLog{BalanceLogs: []BalanceLog{bl}})
	if err != nil {
		return
	}

	w.emit(EventEmergencyWithdrawal, bl)

	return
}

// AddAsset registers an asset for deposits and withdrawals. Admin only.
func (w *Worker) AddAsset(caller, asset string, source oracle.Source, decimals uint8) (err error) {
	if !w.authz.HasRole(caller, auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prevList := w.registry.snapshotList()
	cfg, err := w.registry.Add(asset, source, decimals, w.now())
	if err != nil {
		return
	}

	w.LogID++
	defer func() {
		if err != nil {
			cfg.Supported = false
			w.registry.restoreList(prevList)
			w.LogID--
		}
	}()

	kind, params := oracle.SpecOf(source)
	al := AssetLog{
		LogIndex:  1,
		Reason:    EventAssetAdded,
		Asset:     asset,
		Decimals:  decimals,
		ListIndex: cfg.listIndex,
		Kind:      kind,
		Params:    params,
	}

	err = w.journal(VaultLog{AssetLogs: []AssetLog{al}})
	if err != nil {
		return
	}

	w.emit(EventAssetAdded, al)

	return
}

// RemoveAsset deactivates an asset. Residual balances stay readable but
// accept no further deposits or withdrawals. Admin only.
func (w *Worker) RemoveAsset(caller, asset string) (err error) {
	if !w.authz.HasRole(caller, auth.RoleAdmin) {
		return auth.ErrUnauthorized
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prevList := w.registry.snapshotList()
	cfg, err := w.registry.Remove(asset)
	if err != nil {
		return
	}

	w.LogID++
	defer func() {
		if err != nil {
			cfg.Supported = true
			w.registry.restoreList(prevList)
			w.LogID--
		}
	}()

	al := AssetLog{
		LogIndex: 1,
		Reason:   EventAssetRemoved,
		Asset:    asset,
		Decimals: cfg.Decimals,
	}

	err = w.journal(VaultLog{AssetLogs: []AssetLog{al}})
	if err != nil {
		return
	}

	w.emit(EventAssetRemoved, al)

	return
}

// journal appends one log line. Callers hold w.mu and have already
// bumped w.LogID.
func (w *Worker) journal(vl VaultLog) (err error) {
	if w.fdb == nil {
		return nil
	}

	vl.LogID = w.LogID
	vl.Ts = w.now().UnixNano()
	vl.MsgSeq = w.LatestMsgSeq

	b, err := json.Marshal(vl)
	if err != nil {
		return
	}

	return w.fdb.WriteLine(string(b) + "\n")
}

// emit publishes a boundary event, best effort.
func (w *Worker) emit(event string, payload interface{}) {
	if w.em == nil {
		return
	}
	w.em.Emit(event, payload)
}

// ----- query surface, serialized with mutations

// GetBalance returns the recorded balance in native precision. Balances
// of removed assets remain readable.
func (w *Worker) GetBalance(owner, asset string) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if it := w.balances.Get(&balanceItem{Owner: owner, Asset: asset}); it != nil {
		return new(big.Int).Set(it.(*balanceItem).Amount)
	}
	return new(big.Int)
}

// GetUserTotalUSD recomputes the owner's total value across supported
// assets at live prices. Unlike TotalValueUSD this is mark-to-market.
func (w *Worker) GetUserTotalUSD(owner string) (total *big.Int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	total = new(big.Int)
	var walkErr error
	w.balances.AscendGreaterOrEqual(&balanceItem{Owner: owner}, func(it btree.Item) bool {
		bal := it.(*balanceItem)
		if bal.Owner != owner {
			return false
		}
		if bal.Amount.Sign() == 0 {
			return true
		}
		cfg, ok := w.registry.Active(bal.Asset)
		if !ok {
			// removed assets keep their balance but carry no live price
			return true
		}
		v, err := w.usdValue(cfg, bal.Amount)
		if err != nil {
			walkErr = err
			return false
		}
		total.Add(total, v)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return total, nil
}

// GetBankInfo returns the ledger totals, caps and counters.
func (w *Worker) GetBankInfo() BankInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	return BankInfo{
		TotalValueUSD:      new(big.Int).Set(w.TotalValueUSD),
		BankCapUSD:         new(big.Int).Set(w.capUSD),
		WithdrawalLimitUSD: new(big.Int).Set(w.limitUSD),
		DepositCount:       w.DepositCount,
		WithdrawalCount:    w.WithdrawalCount,
		AssetCount:         w.registry.Len(),
	}
}

// ListSupportedAssets returns active assets in iteration-list order.
func (w *Worker) ListSupportedAssets() []AssetConfig {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfgs := w.registry.ListSupported()
	out := make([]AssetConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, *cfg)
	}
	return out
}

// GetAssetPrice reads and validates the current price of an asset.
func (w *Worker) GetAssetPrice(asset string) (price *big.Int, decimals uint8, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, ok := w.registry.Active(asset)
	if !ok {
		return nil, 0, ErrTokenNotSupported
	}

	reading, err := cfg.Source.ReadPrice()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidPriceSource, err)
	}
	err = oracle.Validate(reading, w.now())
	if err != nil {
		return nil, 0, err
	}

	return new(big.Int).Set(reading.Price), reading.Decimals, nil
}
