package ingress

import (
	"encoding/json"

	"vaultd/pkg/config"
	"vaultd/pkg/xetcd"
	"vaultd/pkg/xnats"

	"github.com/nats-io/nats.go"
)

// Worker publishes deposit and withdraw requests to the vault's stream.
type Worker struct {
	Nats nats.JetStreamContext
}

func (w *Worker) GetNats() (js nats.JetStreamContext, err error) {
	if w.Nats != nil {
		return w.Nats, nil
	}

	natsUrl, err := xetcd.Get(xetcd.KeyNatsService())
	if err != nil {
		natsUrl = config.Shared.Nats.Main.Url
		if natsUrl == "" {
			return
		}
		err = nil
	}

	// Connect to NATS
	nc, err := nats.Connect(natsUrl)
	if err != nil {
		return
	}

	// Create JetStream Context
	js, err = nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		return
	}
	w.Nats = js

	return
}

func (w *Worker) SendDepositReq(msg xnats.DepositReq) (err error) {
	js, err := w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, err = js.Publish("VAULT.req.deposit", data)

	return
}

func (w *Worker) SendWithdrawReq(msg xnats.WithdrawReq) (err error) {
	js, err := w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, err = js.Publish("VAULT.req.withdraw", data)

	return
}
