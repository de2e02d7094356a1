package vault

import (
	"encoding/json"
	"sort"
	"time"

	"vaultd/pkg/fixedpoint"
	"vaultd/pkg/model"
	"vaultd/pkg/oracle"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// StartWriter reads data from the journal and writes it to MySQL
func (w *Worker) StartWriter() (err error) {
	round := 0
	for {
		round++
		logger.Infof("StartWriter round:%d started", round)
		err = w.FiledbToMySQL()
		if err != nil {
			logger.Errorf("StartWriter round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartWriter round:%d done", round)
		}
		time.Sleep(time.Second)
	}
}

// FiledbToMySQL retrieves the content of the journal in real-time and writes it to MySQL
func (w *Worker) FiledbToMySQL() (err error) {
	ch := make(chan string, 1000)

	w.SavedLogID, err = w.LoadSavedLogID()
	if err != nil {
		return
	}

	go func() {
		err = w.fdb.Tailf(ch)
		if err != nil {
			close(ch)
		}
	}()

	err2 := w.fdb.ToMySQL(ch)
	if err == nil {
		err = err2
	}

	return
}

// LoadSavedLogID reads the latest processed logID from MySQL
func (w *Worker) LoadSavedLogID() (id int64, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadSavedLogID failed with err:%s", err)
		} else {
			logger.Infof("LoadSavedLogID done with id:%d", id)
		}
	}()

	db := model.GetMySQL()

	var lastSnap model.VaultSnap
	err = db.Model(model.VaultSnap{}).Order("id desc").Limit(1).Find(&lastSnap).Error
	if err != nil {
		return
	}
	id = lastSnap.LogID

	return
}

// WaitForFiledb waits for the writer to catch up with the journal before
// the worker starts serving
//
//	Read the logID of the latest record to ensure that the previous logs
//	have all been written to MySQL, i.e., savedLogID >= logID
func (w *Worker) WaitForFiledb() (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("WaitForFiledb failed with err:%s", err)
		}
	}()

	s, err := w.fdb.ReadLastLine()
	if err != nil {
		return
	}
	if s == "" {
		return nil
	}

	var vl VaultLog
	err = json.Unmarshal([]byte(s), &vl)
	if err != nil {
		return
	}

	w.LogID = vl.LogID

	for {
		savedLogID, _ := w.LoadSavedLogID()
		if savedLogID >= vl.LogID {
			logger.Infof("WaitForFiledb done with savedLogID:%d, logID:%d", savedLogID, vl.LogID)
			return
		}
		ts := time.Second
		logger.Infof("WaitForFiledb sleep:%s with savedLogID:%d, logID:%d", ts, savedLogID, vl.LogID)
		time.Sleep(ts)
	}
}

// ParseAndWriteLogs parses journal lines and writes them to MySQL in one batch
func (w *Worker) ParseAndWriteLogs(ss []string) (err error) {
	latestLogID := int64(0)
	latestMsgSeq := int64(0)

	newSnaps := make([]model.VaultSnap, 0)
	updateBalances := make(map[[2]string]*model.Balance)
	updateAssets := make(map[string]*model.Asset)

	// skip the whole batch when it precedes what MySQL already has
	last := new(VaultLog)
	err = json.Unmarshal([]byte(ss[len(ss)-1]), last)
	if err != nil {
		logger.Errorf("ParseAndWriteLogs failed with data:%s, err:%s", ss[len(ss)-1], err)
		return
	}
	if last.LogID <= w.SavedLogID {
		logger.Debugf("ParseAndWriteLogs skip latestLogID:%d <= saveLogID:%d", last.LogID, w.SavedLogID)
		return
	}

	for _, s := range ss {
		vl := new(VaultLog)
		err = json.Unmarshal([]byte(s), vl)
		if err != nil {
			logger.Errorf("Unmarshal VaultLog failed with data:%s, err:%s", s, err)
			return
		}

		if vl.LogID <= w.SavedLogID {
			continue
		}
		latestLogID = vl.LogID

		if int64(vl.MsgSeq) > latestMsgSeq {
			latestMsgSeq = int64(vl.MsgSeq)
		}

		for _, bl := range vl.BalanceLogs {
			amountChange, _ := decimal.NewFromString(bl.AmountChange)
			amountNew, _ := decimal.NewFromString(bl.AmountNew)
			valueUSD, _ := decimal.NewFromString(bl.ValueUSD)
			totalUSDNew, _ := decimal.NewFromString(bl.TotalUSDNew)

			snap := model.VaultSnap{
				LogType:         1,
				LogID:           vl.LogID,
				LogIndex:        bl.LogIndex,
				Reason:          bl.Reason,
				Owner:           bl.Owner,
				Asset:           bl.Asset,
				AmountChange:    amountChange,
				AmountNew:       amountNew,
				ValueUSD:        valueUSD,
				TotalUSDNew:     totalUSDNew,
				DepositCount:    bl.DepositCount,
				WithdrawalCount: bl.WithdrawalCount,
			}
			newSnaps = append(newSnaps, snap)

			// emergency withdrawals move custody without touching balances
			if bl.Reason != EventEmergencyWithdrawal {
				updateBalances[[2]string{bl.Owner, bl.Asset}] = &model.Balance{
					Owner:  bl.Owner,
					Asset:  bl.Asset,
					Amount: amountNew,
				}
			}
		}

		for _, al := range vl.AssetLogs {
			updateAssets[al.Asset] = &model.Asset{
				Asset:        al.Asset,
				Decimals:     al.Decimals,
				Supported:    al.Reason == EventAssetAdded,
				ListIndex:    al.ListIndex,
				SourceKind:   al.Kind,
				SourceParams: model.GormMap(al.Params),
			}
		}
	}

	if latestLogID == 0 {
		return
	}

	db := model.GetMySQLSlience()
	tx := db.Begin()
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if len(newSnaps) > 0 {
		err = tx.Create(&newSnaps).Error
		if err != nil {
			return
		}
	}

	for _, bal := range updateBalances {
		err = tx.Model(model.Balance{}).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "owner"}, {Name: "asset"}},
				DoUpdates: clause.AssignmentColumns([]string{"amount"}),
			}).
			Create(bal).Error
		if err != nil {
			return
		}
	}

	for _, a := range updateAssets {
		err = tx.Model(model.Asset{}).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "asset"}},
				DoUpdates: clause.AssignmentColumns([]string{"decimals", "supported", "list_index", "source_kind", "source_params"}),
			}).
			Create(a).Error
		if err != nil {
			return
		}
	}

	if latestMsgSeq > 0 {
		err = tx.Model(model.Lastkv{}).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "app"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"val"}),
			}).
			Create(&model.Lastkv{App: "vault", Key: model.LASTKV_K_NATS_SEQ, Val: latestMsgSeq}).Error
		if err != nil {
			return
		}
	}

	err = tx.Commit().Error
	if err != nil {
		return
	}

	w.SavedLogID = latestLogID

	return
}

// LoadState loads balances, registry configuration, totals and counters
// from MySQL
//
//	Ensure that the journal has been written to MySQL before continuing
func (w *Worker) LoadState() (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadState failed with err:%s", err)
		} else {
			logger.Infof("LoadState done with logID:%d, latestMsgSeq:%d, totalUSD:%s, assets:%d",
				w.LogID, w.LatestMsgSeq, w.TotalValueUSD.String(), w.registry.Len())
		}
	}()

	db := model.GetMySQL()

	// balances
	var balances []model.Balance
	err = db.Model(model.Balance{}).Order("id asc").Find(&balances).Error
	if err != nil {
		return
	}
	for _, bal := range balances {
		w.balances.ReplaceOrInsert(&balanceItem{
			Owner:  bal.Owner,
			Asset:  bal.Asset,
			Amount: bal.Amount.BigInt(),
		})
	}

	// registry, native is already seeded by construction
	var assets []model.Asset
	err = db.Model(model.Asset{}).Find(&assets).Error
	if err != nil {
		return
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ListIndex < assets[j].ListIndex })
	for _, a := range assets {
		if a.Asset == AssetNative {
			continue
		}
		var src oracle.Source
		src, err = oracle.FromSpec(a.SourceKind, a.SourceParams.V())
		if err != nil {
			logger.Warningf("LoadState asset:%s source rebuild failed with err:%s", a.Asset, err)
			src = oracle.Unavailable{}
			err = nil
		}
		cfg := &AssetConfig{
			Asset:     a.Asset,
			Decimals:  a.Decimals,
			Supported: a.Supported,
			Source:    src,
			listIndex: -1,
		}
		w.registry.assets[a.Asset] = cfg
		if a.Supported {
			cfg.listIndex = len(w.registry.list)
			w.registry.list = append(w.registry.list, a.Asset)
		}
	}

	// totals and counters from the latest snapshot
	var lastSnap model.VaultSnap
	err = db.Model(model.VaultSnap{}).Order("id desc").Limit(1).Find(&lastSnap).Error
	if err != nil {
		return
	}
	if lastSnap.ID > 0 {
		w.TotalValueUSD = fixedpoint.DecimalToUSD(lastSnap.TotalUSDNew)
		w.DepositCount = lastSnap.DepositCount
		w.WithdrawalCount = lastSnap.WithdrawalCount
	}

	// latest NATS sequence
	var kv model.Lastkv
	err = db.Model(model.Lastkv{}).
		Where("`app`=? AND `key`=?", "vault", model.LASTKV_K_NATS_SEQ).
		Limit(1).Find(&kv).Error
	if err != nil {
		return
	}
	if uint64(kv.Val) > w.LatestMsgSeq {
		w.LatestMsgSeq = uint64(kv.Val)
	}

	return
}
