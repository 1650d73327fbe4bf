// Package validation provides the validated identifier types used across contraship.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// Solidity identifiers: letters, digits, underscore and dollar, not starting with a digit
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]{0,255}$`)

// ContractName identifies a compiled contract, optionally qualified by the
// source file that defines it ("src/Registry.sol:Registry").
type ContractName struct {
	source string
	name   string
}

// ParseContractName validates a bare or fully qualified contract name
func ParseContractName(s string) (ContractName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ContractName{}, errors.New("contract name cannot be empty")
	}

	source, name := "", s
	if i := strings.LastIndex(s, ":"); i >= 0 {
		source, name = s[:i], s[i+1:]
		if source == "" {
			return ContractName{}, fmt.Errorf("invalid contract name %q: empty source path", s)
		}
		if !strings.HasSuffix(source, ".sol") {
			return ContractName{}, fmt.Errorf("invalid contract name %q: source must be a .sol file", s)
		}
		if strings.Contains(source, "..") {
			return ContractName{}, fmt.Errorf("invalid contract name %q: path traversal", s)
		}
	}

	if !identifierRegex.MatchString(name) {
		return ContractName{}, fmt.Errorf("invalid contract name %q: must be a Solidity identifier", name)
	}
	return ContractName{source: source, name: name}, nil
}

// MustContractName is ParseContractName for constants and tests
func MustContractName(s string) ContractName {
	n, err := ParseContractName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Name returns the bare contract identifier
func (c ContractName) Name() string { return c.name }

// Source returns the qualifying source path, empty when unqualified
func (c ContractName) Source() string { return c.source }

// Qualified reports whether a source path was given
func (c ContractName) Qualified() bool { return c.source != "" }

func (c ContractName) String() string {
	if c.source == "" {
		return c.name
	}
	return c.source + ":" + c.name
}

// Address is a validated 20-byte account address. Its zero value is the zero
// address and is never produced by ParseAddress.
type Address struct {
	addr common.Address
}

// ParseAddress validates a 0x-prefixed hex address
func ParseAddress(s string) (Address, error) {
	if err := ValidateAddress(s); err != nil {
		return Address{}, err
	}
	a := common.HexToAddress(s)
	if a == (common.Address{}) {
		return Address{}, errors.New("invalid address: zero address")
	}
	return Address{addr: a}, nil
}

// AddressFrom wraps an address obtained from the chain
func AddressFrom(a common.Address) Address {
	return Address{addr: a}
}

// Common returns the go-ethereum representation
func (a Address) Common() common.Address { return a.addr }

// IsZero reports whether the address is unset
func (a Address) IsZero() bool { return a.addr == (common.Address{}) }

// String returns the EIP-55 checksummed form
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return a.addr.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID uint64) error {
	if chainID == 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version such as "0.8.24" or the
// long form "0.8.24+commit.e11b9ed9".
func ValidateCompilerVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid("v" + normalized) {
		return fmt.Errorf("invalid compiler version %q", v)
	}
	main, _, _ := strings.Cut(normalized, "+")
	main, _, _ = strings.Cut(main, "-")
	if strings.Count(main, ".") != 2 {
		return fmt.Errorf("invalid compiler version %q: must be X.Y.Z", v)
	}
	return nil
}

// CompilerVersionTag returns the "v"-prefixed form block explorers expect
func CompilerVersionTag(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

// CompareCompilerVersions compares two solc versions ignoring build metadata.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareCompilerVersions(v1, v2 string) int {
	return semver.Compare(CompilerVersionTag(v1), CompilerVersionTag(v2))
}
