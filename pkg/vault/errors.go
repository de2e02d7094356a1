package vault

import "errors"

var (
	ErrZeroAmount  = errors.New("zero amount")
	ErrZeroAddress = errors.New("zero address")

	ErrTokenNotSupported  = errors.New("token not supported")
	ErrAlreadySupported   = errors.New("already supported")
	ErrInvalidPriceSource = errors.New("invalid price source")
	ErrNativeAsset        = errors.New("native asset can not be removed")

	ErrBankCapacityExceeded    = errors.New("bank capacity exceeded")
	ErrWithdrawalLimitExceeded = errors.New("withdrawal limit exceeded")
	ErrInsufficientBalance     = errors.New("insufficient balance")
)
