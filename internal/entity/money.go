package entity

import "errors"

// RateScale is the fixed-point scaling applied to exchange rates.
const RateScale = 1_000_000

// ErrRateInexact is returned when a base amount does not divide evenly into
// provider units at the given rate.
var ErrRateInexact = errors.New("amount not representable at exchange rate")

// ConvertToProviderMinor converts a base-currency amount into minor units of
// the provider currency. rateMicros is base units per provider unit times
// RateScale; minorPerMajor is the provider's minor-unit factor (100 for kobo
// or cents). All arithmetic is integral; an inexact division is an error
// rather than a silently rounded charge.
func ConvertToProviderMinor(baseAmount, rateMicros, minorPerMajor int64) (int64, error) {
	if rateMicros <= 0 || minorPerMajor <= 0 {
		return 0, errors.New("invalid conversion parameters")
	}
	scaled := baseAmount * RateScale * minorPerMajor
	if scaled%rateMicros != 0 {
		return 0, ErrRateInexact
	}
	return scaled / rateMicros, nil
}
