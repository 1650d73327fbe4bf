package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/contraship/internal/middleware/realip"
)

// DefaultGasCeiling is the gas limit applied when neither the project file nor
// the environment sets one.
const DefaultGasCeiling = 60_000_000

// ProjectFiles is the search order for the project config file
var ProjectFiles = []string{"contraship.toml", ".contraship.toml"}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for a contraship process
type Config struct {
	Project   ProjectConfig
	Networks  []NetworkDefinition
	Deploy    DeployConfig
	Verify    VerifyConfig
	Server    ServerConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig

	// Sequence lists contracts deployed in order by the sequence command
	Sequence []SequenceStep

	// Path is the project file the config was loaded from, empty when none.
	Path string
}

// ProjectConfig holds settings about the compiled project
type ProjectConfig struct {
	Root           string
	DefaultNetwork string
	GasCeiling     uint64
}

// NetworkDefinition is a network entry as written by the operator. It is not
// validated here; the network registry decides whether it is usable.
type NetworkDefinition struct {
	Name                 string `toml:"-"`
	RPCURL               string `toml:"rpc_url"`
	PrivateKey           string `toml:"private_key"`
	ChainID              uint64 `toml:"chain_id"`
	GasCeiling           uint64 `toml:"gas_ceiling"`
	Confirmations        uint64 `toml:"confirmations"`
	VerificationURL      string `toml:"verify_url"`
	VerificationAPIKey   string `toml:"verify_api_key"`
	VerificationDisabled bool   `toml:"verify_disabled"`
}

// SequenceStep is one contract of a deployment sequence. Libraries use the
// --lib form, source.sol:Name=0xaddress.
type SequenceStep struct {
	Contract   string   `toml:"contract"`
	Args       []string `toml:"args"`
	Libraries  []string `toml:"libraries"`
	SkipVerify bool     `toml:"skip_verify"`
}

// DeployConfig holds transaction submission settings
type DeployConfig struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	Confirmations       uint64
	GasMarginPercent    int
}

// VerifyConfig holds verification retry settings
type VerifyConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}

// ServerConfig holds history API server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds

	MaxBodySizeMB int
	// APIKeys, when set, are required on POST /check, which dials the
	// configured RPC endpoints.
	APIKeys []string

	TrustProxy     bool
	TrustedProxies []string
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "none", "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	// TextFile, when set, receives the metrics of a CLI run in the
	// node_exporter textfile format.
	TextFile string
}

// fileConfig mirrors the TOML project file
type fileConfig struct {
	Root           string                       `toml:"root"`
	DefaultNetwork string                       `toml:"default_network"`
	GasCeiling     uint64                       `toml:"gas_ceiling"`
	Networks       map[string]NetworkDefinition `toml:"networks"`
	Deploy         struct {
		ConfirmationTimeout string `toml:"confirmation_timeout"`
		Confirmations       uint64 `toml:"confirmations"`
	} `toml:"deploy"`
	Verify struct {
		MaxAttempts int    `toml:"max_attempts"`
		BaseDelay   string `toml:"base_delay"`
	} `toml:"verify"`
	Storage struct {
		Type string `toml:"type"`
		Path string `toml:"path"`
	} `toml:"storage"`
	Sequence []SequenceStep `toml:"sequence"`
}

// Load builds the configuration from defaults, the project file at path (or
// the first of ProjectFiles found when path is empty), and the environment,
// in that order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	file, usedPath, err := readProjectFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = usedPath
	if file != nil {
		if err := cfg.applyFile(file); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:       ".",
			GasCeiling: DefaultGasCeiling,
		},
		Deploy: DeployConfig{
			ConfirmationTimeout: 5 * time.Minute,
			PollInterval:        4 * time.Second,
			Confirmations:       1,
			GasMarginPercent:    20,
		},
		Verify: VerifyConfig{
			MaxAttempts:    5,
			BaseDelay:      5 * time.Second,
			MaxDelay:       2 * time.Minute,
			RequestTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 60,
			IdleTimeout:  120,

			MaxBodySizeMB: 1,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: ".contraship/history.db"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
			BurstSize:      50,
			CleanupMinutes: 10,
		},
	}
}

func readProjectFile(path string) (*fileConfig, string, error) {
	candidates := ProjectFiles
	explicit := path != ""
	if explicit {
		candidates = []string{path}
	}

	for _, name := range candidates {
		data, err := os.ReadFile(name)
		if err != nil {
			if os.IsNotExist(err) && !explicit {
				continue
			}
			return nil, name, fmt.Errorf("reading %s: %w", name, err)
		}

		// ${VAR} references keep secrets out of the file
		var fc fileConfig
		if _, err := toml.Decode(os.ExpandEnv(string(data)), &fc); err != nil {
			return nil, name, fmt.Errorf("parsing %s: %w", name, err)
		}
		return &fc, name, nil
	}
	return nil, "", nil
}

func (c *Config) applyFile(fc *fileConfig) error {
	if fc.Root != "" {
		c.Project.Root = fc.Root
	}
	if fc.DefaultNetwork != "" {
		c.Project.DefaultNetwork = fc.DefaultNetwork
	}
	if fc.GasCeiling > 0 {
		c.Project.GasCeiling = fc.GasCeiling
	}

	for name, def := range fc.Networks {
		def.Name = name
		c.Networks = append(c.Networks, def)
	}

	if fc.Deploy.ConfirmationTimeout != "" {
		d, err := time.ParseDuration(fc.Deploy.ConfirmationTimeout)
		if err != nil {
			return fmt.Errorf("%w: deploy.confirmation_timeout: %v", ErrInvalidConfig, err)
		}
		c.Deploy.ConfirmationTimeout = d
	}
	if fc.Deploy.Confirmations > 0 {
		c.Deploy.Confirmations = fc.Deploy.Confirmations
	}
	if fc.Verify.MaxAttempts > 0 {
		c.Verify.MaxAttempts = fc.Verify.MaxAttempts
	}
	if fc.Verify.BaseDelay != "" {
		d, err := time.ParseDuration(fc.Verify.BaseDelay)
		if err != nil {
			return fmt.Errorf("%w: verify.base_delay: %v", ErrInvalidConfig, err)
		}
		c.Verify.BaseDelay = d
	}
	if fc.Storage.Type != "" {
		c.Storage.Type = fc.Storage.Type
	}
	if fc.Storage.Path != "" {
		c.Storage.SQLite.Path = fc.Storage.Path
	}
	c.Sequence = fc.Sequence
	return nil
}

func (c *Config) applyEnv() {
	c.Project.Root = getEnv("CONTRASHIP_ROOT", c.Project.Root)
	c.Project.DefaultNetwork = getEnv("CONTRASHIP_NETWORK", c.Project.DefaultNetwork)
	c.Project.GasCeiling = getEnvUint("GAS_CEILING", c.Project.GasCeiling)

	c.Deploy.ConfirmationTimeout = getEnvDuration("DEPLOY_CONFIRMATION_TIMEOUT", c.Deploy.ConfirmationTimeout)
	c.Deploy.PollInterval = getEnvDuration("DEPLOY_POLL_INTERVAL", c.Deploy.PollInterval)
	c.Deploy.Confirmations = getEnvUint("DEPLOY_CONFIRMATIONS", c.Deploy.Confirmations)
	c.Deploy.GasMarginPercent = getEnvInt("DEPLOY_GAS_MARGIN_PERCENT", c.Deploy.GasMarginPercent)

	c.Verify.MaxAttempts = getEnvInt("VERIFY_MAX_ATTEMPTS", c.Verify.MaxAttempts)
	c.Verify.BaseDelay = getEnvDuration("VERIFY_BASE_DELAY", c.Verify.BaseDelay)
	c.Verify.MaxDelay = getEnvDuration("VERIFY_MAX_DELAY", c.Verify.MaxDelay)
	c.Verify.RequestTimeout = getEnvDuration("VERIFY_REQUEST_TIMEOUT", c.Verify.RequestTimeout)

	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.MaxBodySizeMB = getEnvInt("MAX_BODY_SIZE_MB", c.Server.MaxBodySizeMB)
	c.Server.APIKeys = getEnvStringSlice("SERVER_API_KEYS", c.Server.APIKeys)
	c.Server.TrustProxy = getEnvBool("TRUST_PROXY", c.Server.TrustProxy)
	c.Server.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", c.Server.TrustedProxies)

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.Postgres.URL = getEnv("DATABASE_URL", c.Storage.Postgres.URL)
	c.Storage.SQLite.Path = getEnv("SQLITE_PATH", c.Storage.SQLite.Path)

	// If DATABASE_URL is set, default to postgres
	if c.Storage.Postgres.URL != "" && c.Storage.Type == "sqlite" {
		c.Storage.Type = "postgres"
	}

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMin = getEnvInt("RATE_LIMIT_RPM", c.RateLimit.RequestsPerMin)
	c.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.BurstSize)
	c.RateLimit.CleanupMinutes = getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", c.RateLimit.CleanupMinutes)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.TextFile = getEnv("METRICS_TEXTFILE", c.Metrics.TextFile)

	c.applyNetworkEnv()
}

// applyNetworkEnv overlays <NAME>_* variables on every known network and adds
// the networks listed in CONTRASHIP_NETWORKS that the file does not define.
func (c *Config) applyNetworkEnv() {
	for _, name := range getEnvStringSlice("CONTRASHIP_NETWORKS", nil) {
		if c.network(name) == nil {
			c.Networks = append(c.Networks, NetworkDefinition{Name: name})
		}
	}

	fallbackKey := os.Getenv("DEPLOYER_PRIVATE_KEY")
	for i := range c.Networks {
		def := &c.Networks[i]
		prefix := EnvPrefix(def.Name)

		def.RPCURL = getEnv(prefix+"_RPC_URL", def.RPCURL)
		def.PrivateKey = getEnv(prefix+"_PRIVATE_KEY", def.PrivateKey)
		if def.PrivateKey == "" {
			def.PrivateKey = fallbackKey
		}
		def.ChainID = getEnvUint(prefix+"_CHAIN_ID", def.ChainID)
		def.GasCeiling = getEnvUint(prefix+"_GAS_CEILING", def.GasCeiling)
		def.VerificationURL = getEnv(prefix+"_VERIFY_URL", def.VerificationURL)
		def.VerificationAPIKey = getEnv(prefix+"_VERIFY_API_KEY", def.VerificationAPIKey)
	}
}

func (c *Config) network(name string) *NetworkDefinition {
	for i := range c.Networks {
		if c.Networks[i].Name == name {
			return &c.Networks[i]
		}
	}
	return nil
}

// Validate checks value ranges. Network definitions are checked on resolve.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required for postgres storage", ErrInvalidConfig)
	}
	if c.Project.GasCeiling == 0 {
		return fmt.Errorf("%w: gas ceiling must be positive", ErrInvalidConfig)
	}
	if c.Deploy.ConfirmationTimeout <= 0 {
		return fmt.Errorf("%w: confirmation timeout must be positive", ErrInvalidConfig)
	}
	if c.Deploy.Confirmations == 0 {
		return fmt.Errorf("%w: confirmations must be at least 1", ErrInvalidConfig)
	}
	if c.Deploy.GasMarginPercent < 0 {
		return fmt.Errorf("%w: gas margin must not be negative", ErrInvalidConfig)
	}
	if c.Verify.MaxAttempts < 1 {
		return fmt.Errorf("%w: verify max attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Verify.BaseDelay < 0 || c.Verify.MaxDelay < c.Verify.BaseDelay {
		return fmt.Errorf("%w: verify delays must satisfy 0 <= base <= max", ErrInvalidConfig)
	}
	if c.Server.MaxBodySizeMB < 1 {
		return fmt.Errorf("%w: max body size must be at least 1 MB", ErrInvalidConfig)
	}
	if c.Server.TrustProxy {
		if _, err := realip.ParsePrefixes(c.Server.TrustedProxies); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	for i, step := range c.Sequence {
		if strings.TrimSpace(step.Contract) == "" {
			return fmt.Errorf("%w: sequence entry %d has no contract", ErrInvalidConfig, i+1)
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin < 1 || c.RateLimit.BurstSize < 1) {
		return fmt.Errorf("%w: rate limit needs positive requests per minute and burst", ErrInvalidConfig)
	}
	return nil
}

// EnvPrefix converts a network name to the prefix of its environment
// variables: "polygonMumbai" becomes "POLYGON_MUMBAI".
func EnvPrefix(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			b.WriteRune('_')
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
