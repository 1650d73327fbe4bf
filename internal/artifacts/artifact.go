// Package artifacts resolves contract names to compiled artifacts produced by
// Foundry or Hardhat.
package artifacts

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrArtifactNotFound is returned when a contract has no usable compiled output
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrNoBuilder is returned when the project root is neither a Foundry nor a Hardhat project
	ErrNoBuilder = errors.New("no supported build tool detected")
	// ErrUnlinkedLibrary is returned when creation code references a library with no address
	ErrUnlinkedLibrary = errors.New("unlinked library")
)

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-fA-F0-9]{34}\$__`)

// ContractArtifact is the compiled output of one contract. It is never
// mutated after Parse returns it.
type ContractArtifact struct {
	Name             string
	SourcePath       string
	Builder          string
	Path             string
	ABI              abi.ABI
	RawABI           json.RawMessage
	CompilerVersion  string
	EVMVersion       string
	Optimizer        Optimizer
	License          string
	BytecodeHex      string
	DeployedBytecode []byte
}

// Optimizer holds solc optimizer settings
type Optimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// Entry is a discovered artifact file
type Entry struct {
	Name       string
	SourcePath string
	Path       string
}

// VerificationInput is the source metadata block explorers need
type VerificationInput struct {
	StandardJSON    json.RawMessage
	CompilerVersion string
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
	// Patterns to exclude (e.g., "Test", "Mock*")
	Exclude []string
	// Dependencies includes contracts compiled from outside the project sources
	Dependencies bool
}

// Builder reads the output of one build tool
type Builder interface {
	Name() string
	Detect(dir string) (bool, error)
	Discover(dir string, opts DiscoverOptions) ([]Entry, error)
	Parse(path string) (*ContractArtifact, error)
	VerificationInput(dir string, artifact *ContractArtifact) (*VerificationInput, error)
}

// FullyQualifiedName returns "source:Name", the form verification services expect
func (a *ContractArtifact) FullyQualifiedName() string {
	if a.SourcePath == "" {
		return a.Name
	}
	return a.SourcePath + ":" + a.Name
}

// ConstructorInputs returns the ordered constructor parameters
func (a *ContractArtifact) ConstructorInputs() abi.Arguments {
	return a.ABI.Constructor.Inputs
}

// ConstructorSignature renders the constructor parameter types, e.g. "(address,string)"
func (a *ContractArtifact) ConstructorSignature() string {
	inputs := a.ConstructorInputs()
	types := make([]string, len(inputs))
	for i, in := range inputs {
		types[i] = in.Type.String()
	}
	return "(" + strings.Join(types, ",") + ")"
}

// CreationCode returns the creation bytecode with every library placeholder
// replaced by the address given for its fully qualified name.
func (a *ContractArtifact) CreationCode(libraries map[string]common.Address) ([]byte, error) {
	code := strings.TrimPrefix(a.BytecodeHex, "0x")

	var missing []string
	code = libraryPlaceholder.ReplaceAllStringFunc(code, func(placeholder string) string {
		for fqn, addr := range libraries {
			if PlaceholderFor(fqn) == strings.ToLower(placeholder) {
				return hex.EncodeToString(addr.Bytes())
			}
		}
		missing = append(missing, placeholder)
		return placeholder
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s references %s", ErrUnlinkedLibrary, a.Name, strings.Join(missing, ", "))
	}

	decoded, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode of %s: %w", a.Name, err)
	}
	return decoded, nil
}

// PlaceholderFor returns the solc link placeholder of a library:
// "__$" + first 34 hex chars of keccak256(fqn) + "$__".
func PlaceholderFor(fqn string) string {
	h := hex.EncodeToString(crypto.Keccak256([]byte(fqn)))
	return "__$" + h[:34] + "$__"
}

// HasLibraryPlaceholders checks if bytecode contains library placeholders
func HasLibraryPlaceholders(bytecodeHex string) bool {
	return libraryPlaceholder.MatchString(bytecodeHex)
}

// newArtifact builds a ContractArtifact and checks the invariants shared by
// every builder: creation code exists and the ABI parses.
func newArtifact(name, sourcePath, path string, rawABI json.RawMessage, bytecode, deployed string) (*ContractArtifact, error) {
	bytecode = strings.TrimSpace(bytecode)
	if bytecode == "" || bytecode == "0x" {
		return nil, fmt.Errorf("%w: %s has no bytecode (likely an interface or abstract contract)", ErrArtifactNotFound, name)
	}

	if len(rawABI) == 0 {
		rawABI = json.RawMessage("[]")
	}
	parsed, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI of %s: %w", name, err)
	}

	var deployedCode []byte
	if d := strings.TrimPrefix(deployed, "0x"); d != "" && !HasLibraryPlaceholders(d) {
		deployedCode, err = hex.DecodeString(d)
		if err != nil {
			return nil, fmt.Errorf("decoding deployed bytecode of %s: %w", name, err)
		}
	}

	return &ContractArtifact{
		Name:             name,
		SourcePath:       filepath.ToSlash(sourcePath),
		Path:             path,
		ABI:              parsed,
		RawABI:           rawABI,
		BytecodeHex:      bytecode,
		DeployedBytecode: deployedCode,
	}, nil
}

// Excluded reports whether name matches any exclude pattern by prefix,
// suffix or glob.
func Excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(name, pattern) || strings.HasPrefix(name, pattern) {
			return true
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Included reports whether name passes an explicit include list
func Included(name string, contracts []string) bool {
	if len(contracts) == 0 {
		return true
	}
	for _, c := range contracts {
		if c == name {
			return true
		}
	}
	return false
}
