package nft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Contract reads come back as a quantity string: a fixed "0x" prefix
// followed by hex digits, possibly zero-padded (a raw 32-byte ABI word
// renders as 64 digits).
const quantityPrefix = "0x"

var (
	ErrMalformedQuantity = errors.New("malformed quantity")
	ErrQuantityOverflow  = errors.New("quantity does not fit in 64 bits")
)

// DecodeQuantity strips the prefix and parses the remaining hex digits.
func DecodeQuantity(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < len(quantityPrefix) || !strings.EqualFold(raw[:len(quantityPrefix)], quantityPrefix) {
		return 0, fmt.Errorf("%w: missing %s prefix in %q", ErrMalformedQuantity, quantityPrefix, raw)
	}
	digits := raw[len(quantityPrefix):]
	if digits == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrMalformedQuantity, raw)
	}

	significant := strings.TrimLeft(digits, "0")
	if significant == "" {
		return 0, nil
	}
	if len(significant) > 16 {
		return 0, fmt.Errorf("%w: %q", ErrQuantityOverflow, raw)
	}
	n, err := strconv.ParseUint(significant, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedQuantity, raw)
	}
	return n, nil
}

// EncodeQuantity renders n with the prefix and an even number of digits.
func EncodeQuantity(n uint64) string {
	digits := strconv.FormatUint(n, 16)
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	return quantityPrefix + digits
}
