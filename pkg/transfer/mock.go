package transfer

import (
	"fmt"
	"math/big"
	"sync"
)

// Call records one movement through a Mock.
type Call struct {
	Dir    string // "in" or "out"
	Party  string
	Asset  string
	Amount *big.Int
}

// Mock is an in-memory Mover for tests and the demo apps. Failures can
// be scripted per asset and direction.
type Mock struct {
	mu    sync.Mutex
	Calls []Call

	FailIn  map[string]error // asset -> error returned by TransferIn
	FailOut map[string]error // asset -> error returned by TransferOut
}

func NewMock() *Mock {
	return &Mock{
		FailIn:  map[string]error{},
		FailOut: map[string]error{},
	}
}

func (m *Mock) TransferIn(from string, asset string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailIn[asset]; err != nil {
		return fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	m.Calls = append(m.Calls, Call{Dir: "in", Party: from, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

func (m *Mock) TransferOut(to string, asset string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailOut[asset]; err != nil {
		return fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	m.Calls = append(m.Calls, Call{Dir: "out", Party: to, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

// LastCall returns the most recent recorded call, nil when none.
func (m *Mock) LastCall() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return nil
	}
	c := m.Calls[len(m.Calls)-1]
	return &c
}
