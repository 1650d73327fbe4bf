// Package networks holds the named network configurations a deployment can target.
package networks

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/contraship/internal/config"
)

// ErrConfiguration is returned when a network is unknown or incompletely configured
var ErrConfiguration = errors.New("configuration error")

// NetworkConfig is everything needed to deploy to and verify on one network.
// Values are handed out as copies; the registry never changes after NewRegistry.
type NetworkConfig struct {
	Name                 string
	RPCURL               string
	SigningCredential    string
	ChainID              uint64 // 0 means take the node's chain ID
	GasCeiling           uint64
	Confirmations        uint64
	VerificationAPIKey   string
	VerificationEndpoint string
	VerificationDisabled bool
}

// PrivateKey parses the signing credential
func (n NetworkConfig) PrivateKey() (*ecdsa.PrivateKey, error) {
	return parsePrivateKey(n.SigningCredential)
}

// Redacted returns a copy safe to print
func (n NetworkConfig) Redacted() NetworkConfig {
	n.SigningCredential = mask(n.SigningCredential)
	n.VerificationAPIKey = mask(n.VerificationAPIKey)
	n.RPCURL = redactURL(n.RPCURL)
	return n
}

// Defaults fill fields a network definition leaves unset
type Defaults struct {
	GasCeiling    uint64
	Confirmations uint64
}

// Registry is an immutable set of network definitions
type Registry struct {
	defs     map[string]config.NetworkDefinition
	defaults Defaults
}

// NewRegistry creates a registry from operator definitions. Definitions are
// validated lazily by Resolve so a broken entry only fails the runs that use it.
func NewRegistry(defs []config.NetworkDefinition, defaults Defaults) *Registry {
	m := make(map[string]config.NetworkDefinition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	if defaults.Confirmations == 0 {
		defaults.Confirmations = 1
	}
	return &Registry{defs: m, defaults: defaults}
}

// FromConfig creates a registry from loaded configuration
func FromConfig(cfg *config.Config) *Registry {
	return NewRegistry(cfg.Networks, Defaults{
		GasCeiling:    cfg.Project.GasCeiling,
		Confirmations: cfg.Deploy.Confirmations,
	})
}

// Names returns the configured network names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the configuration for name
func (r *Registry) Resolve(name string) (NetworkConfig, error) {
	def, ok := r.defs[name]
	if !ok {
		known := strings.Join(r.Names(), ", ")
		if known == "" {
			known = "none configured"
		}
		return NetworkConfig{}, fmt.Errorf("%w: unknown network %q (known: %s)", ErrConfiguration, name, known)
	}

	cfg := NetworkConfig{
		Name:                 name,
		RPCURL:               strings.TrimSpace(def.RPCURL),
		SigningCredential:    strings.TrimSpace(def.PrivateKey),
		ChainID:              def.ChainID,
		GasCeiling:           def.GasCeiling,
		Confirmations:        def.Confirmations,
		VerificationAPIKey:   strings.TrimSpace(def.VerificationAPIKey),
		VerificationEndpoint: strings.TrimSpace(def.VerificationURL),
		VerificationDisabled: def.VerificationDisabled,
	}
	if cfg.GasCeiling == 0 {
		cfg.GasCeiling = r.defaults.GasCeiling
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = r.defaults.Confirmations
	}

	if err := validate(cfg); err != nil {
		return NetworkConfig{}, err
	}
	return cfg, nil
}

func validate(cfg NetworkConfig) error {
	prefix := config.EnvPrefix(cfg.Name)

	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: network %q has no RPC URL (set %s_RPC_URL)", ErrConfiguration, cfg.Name, prefix)
	}
	if err := checkURL(cfg.RPCURL, "http", "https", "ws", "wss"); err != nil {
		return fmt.Errorf("%w: network %q RPC URL: %v", ErrConfiguration, cfg.Name, err)
	}
	if cfg.SigningCredential == "" {
		return fmt.Errorf("%w: network %q has no signing credential (set %s_PRIVATE_KEY or DEPLOYER_PRIVATE_KEY)",
			ErrConfiguration, cfg.Name, prefix)
	}
	if _, err := parsePrivateKey(cfg.SigningCredential); err != nil {
		return fmt.Errorf("%w: network %q: %v", ErrConfiguration, cfg.Name, err)
	}
	if cfg.GasCeiling == 0 {
		return fmt.Errorf("%w: network %q gas ceiling must be positive", ErrConfiguration, cfg.Name)
	}
	if cfg.VerificationEndpoint != "" {
		if err := checkURL(cfg.VerificationEndpoint, "http", "https"); err != nil {
			return fmt.Errorf("%w: network %q verification endpoint: %v", ErrConfiguration, cfg.Name, err)
		}
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 10 {
		return "****"
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// redactURL hides credentials and API keys some providers embed in RPC URLs
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return mask(raw)
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	// Infura/Alchemy style keys live in the last path segment
	if i := strings.LastIndex(u.Path, "/"); i >= 0 && len(u.Path)-i > 20 {
		u.Path = u.Path[:i+1] + "redacted"
	}
	return u.String()
}
