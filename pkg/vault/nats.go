package vault

import (
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"vaultd/pkg/auth"
	"vaultd/pkg/config"
	"vaultd/pkg/fixedpoint"
	"vaultd/pkg/oracle"
	"vaultd/pkg/transfer"
	"vaultd/pkg/xetcd"
	"vaultd/pkg/xnats"

	"github.com/nats-io/nats.go"
)

// NATS subjects: requests come in on VAULT.req.*, boundary events go out
// on VAULT.evt.<EventName>.
const (
	SubjectDepositReq  = "VAULT.req.deposit"
	SubjectWithdrawReq = "VAULT.req.withdraw"
	SubjectEventPrefix = "VAULT.evt."
)

// VaultMsg is one unit of work for the main loop.
type VaultMsg struct {
	N *nats.Msg
}

// ConnectNats resolves the NATS endpoint via etcd with a config fallback
// and returns a JetStream context.
func ConnectNats() (js nats.JetStreamContext, err error) {
	natsUrl, err := xetcd.Get(xetcd.KeyNatsService())
	if err != nil {
		natsUrl = config.Shared.Nats.Main.Url
		if natsUrl == "" {
			return
		}
		logger.Warningf("nats discovery failed, using config url %s", natsUrl)
		err = nil
	}

	nc, err := nats.Connect(natsUrl)
	if err != nil {
		return
	}

	js, err = nc.JetStream(nats.PublishAsyncMaxPending(256))
	return
}

func (w *Worker) StartSubNats() (err error) {
	round := 0
	for {
		round++
		logger.Infof("StartSubNats round:%d started", round)
		err = w.SubNats()
		if err != nil {
			logger.Errorf("StartSubNats round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartSubNats round:%d done", round)
		}
		time.Sleep(time.Second)
	}
}

// SubNats subscribes to deposit/withdraw requests and forwards them to
// the main loop
func (w *Worker) SubNats() (err error) {
	js, err := ConnectNats()
	if err != nil {
		return
	}

	ch2 := make(chan *nats.Msg, 256)
	_, err = js.ChanSubscribe("VAULT.req.*", ch2, nats.StartSequence(w.LatestMsgSeq+1), nats.AckAll())
	if err != nil {
		return
	}

	for {
		m, ok := <-ch2
		if !ok {
			return
		}
		w.ch <- VaultMsg{N: m}
	}
}

type ackPayload struct {
	msg *nats.Msg
	seq uint64
}

// HandleVaultMsgs handles requests sequentially on the main loop
func (w *Worker) HandleVaultMsgs() (err error) {
	// acks are batched, only the latest sequence needs acking with AckAll
	chAck := make(chan ackPayload, 1024)

	go func() {
		var latest ackPayload
		for {
			mp := <-chAck
			if mp.seq > latest.seq {
				latest = mp
			}
			l := len(chAck)
			for i := 0; i < l; i++ {
				mp = <-chAck
				if mp.seq > latest.seq {
					latest = mp
				}
			}
			err := latest.msg.Ack()
			if err != nil {
				logger.Errorf("msg(%v) ack failed with err:%s", latest.seq, err)
				continue
			}
			logger.Debugf("msg(%v) ack done", latest.seq)
		}
	}()

	for {
		vm, ok := <-w.ch
		if !ok {
			return
		}

		if vm.N == nil {
			continue
		}

		switch vm.N.Subject {
		case SubjectDepositReq, SubjectWithdrawReq:
			err = w.HandleBalanceReq(vm.N, chAck)
			if err != nil {
				return
			}
		default:
			logger.Warningf("unknown subject %s", vm.N.Subject)
		}
	}
}

// HandleBalanceReq applies one deposit or withdraw request. Requests the
// ledger rejects are acked and dropped, the rejection has no state
// effect, so a redelivery after restart is rejected again.
func (w *Worker) HandleBalanceReq(msg *nats.Msg, chAck chan ackPayload) (err error) {
	md, err := msg.Metadata()
	if err != nil {
		return
	}
	seq := md.Sequence.Stream

	logger.Tracef("HandleBalanceReq msg:%s, seq:%d", msg.Subject, seq)

	if seq <= w.LatestMsgSeq {
		logger.Warningf("seq(%d) <= w.LatestMsgSeq(%d)", seq, w.LatestMsgSeq)
		chAck <- ackPayload{msg: msg, seq: seq}
		return nil
	}

	var owner, asset, amountStr string
	withdraw := msg.Subject == SubjectWithdrawReq
	if withdraw {
		var req xnats.WithdrawReq
		if err = json.Unmarshal(msg.Data, &req); err != nil {
			logger.Errorf("bad withdraw req:%s, err:%s", msg.Data, err)
			chAck <- ackPayload{msg: msg, seq: seq}
			return nil
		}
		owner, asset, amountStr = req.Owner, req.Asset, req.Amount
	} else {
		var req xnats.DepositReq
		if err = json.Unmarshal(msg.Data, &req); err != nil {
			logger.Errorf("bad deposit req:%s, err:%s", msg.Data, err)
			chAck <- ackPayload{msg: msg, seq: seq}
			return nil
		}
		owner, asset, amountStr = req.Owner, req.Asset, req.Amount
	}

	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		logger.Errorf("bad amount %q from msg seq:%d", amountStr, seq)
		chAck <- ackPayload{msg: msg, seq: seq}
		return nil
	}

	w.mu.Lock()
	w.LatestMsgSeq = seq
	w.mu.Unlock()

	if withdraw {
		err = w.Withdraw(owner, asset, amount)
	} else {
		err = w.Deposit(owner, asset, amount)
	}
	if err != nil {
		if !isRejection(err) {
			return
		}
		logger.Warningf("req seq:%d rejected with err:%s", seq, err)
		err = nil
	}

	chAck <- ackPayload{msg: msg, seq: seq}

	return
}

// isRejection tells business rejections apart from infrastructure
// failures. Rejections are final, infrastructure failures stop the loop.
func isRejection(err error) bool {
	for _, target := range []error{
		ErrZeroAmount, ErrZeroAddress, ErrTokenNotSupported,
		ErrBankCapacityExceeded, ErrWithdrawalLimitExceeded, ErrInsufficientBalance,
		ErrInvalidPriceSource, ErrNativeAsset, ErrAlreadySupported,
		auth.ErrUnauthorized, transfer.ErrTransferFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return errors.Is(err, oracle.ErrInvalidPrice) ||
		errors.Is(err, oracle.ErrStalePrice) ||
		errors.Is(err, fixedpoint.ErrValueOverflow)
}

// NatsEmitter publishes boundary events to JetStream.
type NatsEmitter struct {
	js nats.JetStreamContext
}

func NewNatsEmitter(js nats.JetStreamContext) *NatsEmitter {
	return &NatsEmitter{js: js}
}

func (e *NatsEmitter) Emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("emit %s marshal failed with err:%s", event, err)
		return
	}
	_, err = e.js.Publish(SubjectEventPrefix+event, data)
	if err != nil {
		logger.Errorf("emit %s publish failed with err:%s", event, err)
	}
}
