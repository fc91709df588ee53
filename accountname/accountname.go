// Package accountname validates account and contract names.
//
// The rule set is versioned by block height: before the AccountNameDashes
// fork a label may not contain two consecutive dashes. The older rule is kept
// on purpose because historical blocks were validated with it.
package accountname

import (
	"strings"

	"github.com/tos-network/ssc/params"
)

const minLabelLength = 3

// IsValid reports whether name is a valid account name at the given height
// of the mainnet rule schedule.
func IsValid(name string, height uint64) bool {
	return Validate(name, params.MainnetChainConfig.Rules(height))
}

// Validate reports whether name is a valid account name under rules.
func Validate(name string, rules params.Rules) bool {
	if len(name) < params.MinAccountNameLength || len(name) > params.MaxAccountNameLength {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if !validLabel(label, rules) {
			return false
		}
	}
	return true
}

func validLabel(label string, rules params.Rules) bool {
	if len(label) < minLabelLength {
		return false
	}
	if !isLower(label[0]) {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !isLower(c) && !isDigit(c) && c != '-' {
			return false
		}
	}
	if !rules.AllowConsecutiveDashes && strings.Contains(label, "--") {
		return false
	}
	last := label[len(label)-1]
	return isLower(last) || isDigit(last)
}

// IsValidContractName reports whether name can be used for a new contract:
// alphanumeric, within the length bounds and not reserved.
func IsValidContractName(name string) bool {
	if len(name) < params.MinContractNameLength || len(name) > params.MaxContractNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isLower(c) && !isDigit(c) && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return !params.IsReservedContractName(name)
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
