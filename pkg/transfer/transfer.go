// Package transfer is the boundary through which value actually moves.
// The vault sequences its balance mutations around these calls, the
// movement itself (chain transfer, bank rail, internal book) is the
// collaborator's concern.
package transfer

import (
	"errors"
	"math/big"
)

var ErrTransferFailed = errors.New("transfer failed")

// Mover moves value between the vault's custody and an external party.
// Both calls are synchronous and fallible, there is no retry. A failure
// aborts the enclosing vault operation.
type Mover interface {
	// TransferIn pulls amount of asset from the owner into custody.
	TransferIn(from string, asset string, amount *big.Int) error
	// TransferOut pushes amount of asset from custody to the recipient.
	TransferOut(to string, asset string, amount *big.Int) error
}
