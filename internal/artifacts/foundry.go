package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FoundryBuilder reads forge output from out/
type FoundryBuilder struct{}

// NewFoundryBuilder creates a new Foundry builder
func NewFoundryBuilder() *FoundryBuilder {
	return &FoundryBuilder{}
}

// Name returns the builder identifier
func (b *FoundryBuilder) Name() string {
	return "foundry"
}

// Detect checks if a directory is a Foundry project
func (b *FoundryBuilder) Detect(dir string) (bool, error) {
	return fileExists(filepath.Join(dir, "foundry.toml"))
}

// Discover finds all contract artifacts in a Foundry project
func (b *FoundryBuilder) Discover(dir string, opts DiscoverOptions) ([]Entry, error) {
	outDir := filepath.Join(dir, "out")

	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: out directory not found - run 'forge build' first", ErrArtifactNotFound)
	}

	var entries []Entry
	seen := make(map[string]bool)

	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		// out/{Source}.sol/{Contract}.json
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		contractName := strings.TrimSuffix(info.Name(), ".json")
		if !Included(contractName, opts.Contracts) || Excluded(contractName, opts.Exclude) {
			return nil
		}

		sourcePath, err := b.sourcePath(path)
		if err != nil {
			return nil // unreadable artifacts are skipped
		}
		if !opts.Dependencies && !strings.HasPrefix(sourcePath, "src/") {
			return nil
		}

		key := sourcePath + ":" + contractName
		if seen[key] {
			return nil
		}
		seen[key] = true
		entries = append(entries, Entry{Name: contractName, SourcePath: sourcePath, Path: path})
		return nil
	})

	return entries, err
}

// sourcePath reads an artifact and returns its compilation target
func (b *FoundryBuilder) sourcePath(artifactPath string) (string, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", err
	}

	var raw foundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	if raw.RawMetadata == "" {
		return "", fmt.Errorf("no metadata")
	}

	var metadata foundryMetadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return "", err
	}
	return firstKey(metadata.Settings.CompilationTarget), nil
}

// Parse parses a Foundry artifact file
func (b *FoundryBuilder) Parse(artifactPath string) (*ContractArtifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw foundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	// Non-fatal, continue without metadata
	var metadata foundryMetadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata)
	}

	name := strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	artifact, err := newArtifact(name, firstKey(metadata.Settings.CompilationTarget), artifactPath,
		raw.ABI, raw.Bytecode.Object, raw.DeployedBytecode.Object)
	if err != nil {
		return nil, err
	}

	artifact.Builder = b.Name()
	artifact.CompilerVersion = metadata.Compiler.Version
	artifact.EVMVersion = metadata.Settings.EVMVersion
	artifact.Optimizer = metadata.Settings.Optimizer
	artifact.License = metadata.Sources.firstLicense()
	return artifact, nil
}

// VerificationInput prefers a per-contract standard JSON built from the
// artifact's own metadata, since its sources hash to the metadata embedded in
// the bytecode. It falls back to the project-wide build-info.
func (b *FoundryBuilder) VerificationInput(dir string, artifact *ContractArtifact) (*VerificationInput, error) {
	if stdJSON, err := b.perContractStandardJSON(dir, artifact.Path); err == nil {
		return &VerificationInput{StandardJSON: stdJSON, CompilerVersion: artifact.CompilerVersion}, nil
	}

	vi, err := b.buildInfoInput(dir, artifact.Name, artifact.SourcePath)
	if err != nil {
		return nil, err
	}
	if vi.CompilerVersion == "" {
		vi.CompilerVersion = artifact.CompilerVersion
	}
	return vi, nil
}

// buildInfoInput finds the build-info whose output contains
// contracts[sourcePath][contractName]. An empty sourcePath takes the first
// readable build-info.
func (b *FoundryBuilder) buildInfoInput(dir, contractName, sourcePath string) (*VerificationInput, error) {
	buildInfoDir := filepath.Join(dir, "out", "build-info")

	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory (run 'forge build --build-info'): %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		bi, err := ReadBuildInfo(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}
		if sourcePath != "" && !bi.Produced(sourcePath, contractName) {
			continue
		}
		vi, err := bi.VerificationInput()
		if err != nil {
			continue
		}
		return vi, nil
	}
	return nil, fmt.Errorf("build-info not found for contract %s", contractName)
}

// standardJSONInput is the per-contract minimal verification input
type standardJSONInput struct {
	Language string                   `json:"language"`
	Sources  map[string]sourceContent `json:"sources"`
	Settings standardJSONSettings     `json:"settings"`
}

type sourceContent struct {
	Content string `json:"content"`
}

type standardJSONSettings struct {
	Optimizer       Optimizer                      `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	ViaIR           bool                           `json:"viaIR,omitempty"`
	Libraries       map[string]map[string]string   `json:"libraries,omitempty"`
	Remappings      []string                       `json:"remappings,omitempty"`
	Metadata        metadataSettings               `json:"metadata,omitempty"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

// perContractStandardJSON builds a standard JSON input from rawMetadata that
// contains only the contract's actual dependencies, read from disk.
func (b *FoundryBuilder) perContractStandardJSON(dir, artifactPath string) ([]byte, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw foundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if raw.RawMetadata == "" {
		return nil, fmt.Errorf("artifact has no rawMetadata")
	}

	var metadata foundryMetadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return nil, fmt.Errorf("parsing rawMetadata: %w", err)
	}
	if len(metadata.Sources) == 0 {
		return nil, fmt.Errorf("metadata has no sources")
	}

	sources := make(map[string]sourceContent, len(metadata.Sources))
	for srcPath := range metadata.Sources {
		content, err := os.ReadFile(filepath.Join(dir, srcPath))
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", srcPath, err)
		}
		sources[srcPath] = sourceContent{Content: string(content)}
	}

	lang := metadata.Language
	if lang == "" {
		lang = "Solidity"
	}

	opt := metadata.Settings.Optimizer
	// runs=0 is correct when the optimizer is disabled
	if opt.Enabled && opt.Runs == 0 {
		opt.Runs = 200
	}

	metaOut := metadataSettings{BytecodeHash: "ipfs"}
	if m := metadata.Settings.Metadata; m != nil {
		if m.BytecodeHash != "" {
			metaOut.BytecodeHash = m.BytecodeHash
		}
		metaOut.UseLiteralContent = m.UseLiteralContent
		metaOut.AppendCBOR = m.AppendCBOR
	}

	input := standardJSONInput{
		Language: lang,
		Sources:  sources,
		Settings: standardJSONSettings{
			Optimizer:  opt,
			EVMVersion: metadata.Settings.EVMVersion,
			ViaIR:      metadata.Settings.ViaIR,
			Libraries:  metadata.Settings.Libraries,
			Remappings: metadata.Settings.Remappings,
			Metadata:   metaOut,
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"abi", "evm.bytecode", "evm.deployedBytecode", "metadata"}},
			},
		},
	}
	return json.Marshal(input)
}

// foundryArtifact is the structure of a forge artifact JSON file
type foundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         bytecodeObject  `json:"bytecode"`
	DeployedBytecode bytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

type bytecodeObject struct {
	Object string `json:"object"`
}

// foundryMetadata is the parsed rawMetadata field
type foundryMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string       `json:"language"`
	Settings settingsMeta `json:"settings"`
	Sources  sourcesMeta  `json:"sources"`
}

type metadataSettings struct {
	BytecodeHash      string `json:"bytecodeHash,omitempty"`
	UseLiteralContent bool   `json:"useLiteralContent,omitempty"`
	AppendCBOR        *bool  `json:"appendCBOR,omitempty"`
}

type settingsMeta struct {
	CompilationTarget map[string]string            `json:"compilationTarget"`
	EVMVersion        string                       `json:"evmVersion"`
	Libraries         map[string]map[string]string `json:"libraries"`
	Metadata          *metadataSettings            `json:"metadata,omitempty"`
	Optimizer         Optimizer                    `json:"optimizer"`
	Remappings        []string                     `json:"remappings"`
	ViaIR             bool                         `json:"viaIR"`
}

type sourcesMeta map[string]struct {
	Keccak256 string `json:"keccak256"`
	License   string `json:"license"`
}

func (s sourcesMeta) firstLicense() string {
	for _, src := range s {
		if src.License != "" {
			return src.License
		}
	}
	return ""
}

func firstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
