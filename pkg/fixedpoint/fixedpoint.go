// Package fixedpoint converts amounts between an asset's native precision
// and the vault's internal 6-decimal USD accounting precision.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// InternalDecimals is the number of fractional digits used for all
// USD-denominated values inside the vault.
const InternalDecimals = 6

// maxBits bounds every computed value to 256 bits
const maxBits = 256

var ErrValueOverflow = errors.New("value overflow")

var bigTen = big.NewInt(10)

// Pow10 returns 10^n as a big.Int
func Pow10(n uint) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// ToInternal rescales an amount from the asset's native precision to the
// internal 6-decimal precision. Scaling down truncates toward zero, the
// lost digits are not recoverable.
func ToInternal(amount *big.Int, nativeDecimals uint8) *big.Int {
	if nativeDecimals > InternalDecimals {
		return new(big.Int).Quo(amount, Pow10(uint(nativeDecimals-InternalDecimals)))
	}
	if nativeDecimals < InternalDecimals {
		return new(big.Int).Mul(amount, Pow10(uint(InternalDecimals-nativeDecimals)))
	}
	return new(big.Int).Set(amount)
}

// AssetToUSD computes the 6-decimal USD value of amount given a price
// quoted with priceDecimals fractional digits:
//
//	usd = amount * price / 10^(nativeDecimals + priceDecimals - 6)
//
// When nativeDecimals+priceDecimals < 6 the exponent is negative, so the
// product is multiplied by 10^(6-nativeDecimals-priceDecimals) instead.
func AssetToUSD(amount, price *big.Int, nativeDecimals, priceDecimals uint8) (*big.Int, error) {
	v := new(big.Int).Mul(amount, price)
	if v.BitLen() > maxBits {
		return nil, ErrValueOverflow
	}

	exp := int(nativeDecimals) + int(priceDecimals) - InternalDecimals
	if exp >= 0 {
		v.Quo(v, Pow10(uint(exp)))
	} else {
		v.Mul(v, Pow10(uint(-exp)))
	}

	if v.BitLen() > maxBits {
		return nil, ErrValueOverflow
	}
	return v, nil
}

// USDToDecimal renders an internal 6-decimal USD value as a decimal,
// for journal lines, database rows and display.
func USDToDecimal(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -InternalDecimals)
}

// DecimalToUSD parses a decimal USD value into the internal 6-decimal
// representation, truncating extra fractional digits.
func DecimalToUSD(d decimal.Decimal) *big.Int {
	return d.Shift(InternalDecimals).Truncate(0).BigInt()
}

// AmountToDecimal renders a native-precision amount as a decimal.
func AmountToDecimal(amount *big.Int, nativeDecimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(nativeDecimals))
}
