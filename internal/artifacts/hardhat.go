package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// hardhatConfigFiles are the config names that mark a Hardhat project
var hardhatConfigFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// HardhatBuilder reads hardhat compile output from artifacts/
type HardhatBuilder struct{}

// NewHardhatBuilder creates a new Hardhat builder
func NewHardhatBuilder() *HardhatBuilder {
	return &HardhatBuilder{}
}

// Name returns the builder identifier
func (b *HardhatBuilder) Name() string {
	return "hardhat"
}

// Detect checks if a directory is a Hardhat project
func (b *HardhatBuilder) Detect(dir string) (bool, error) {
	for _, name := range hardhatConfigFiles {
		ok, err := fileExists(filepath.Join(dir, name))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Discover finds all contract artifacts in a Hardhat project
func (b *HardhatBuilder) Discover(dir string, opts DiscoverOptions) ([]Entry, error) {
	artifactsDir := filepath.Join(dir, "artifacts")
	if _, err := os.Stat(artifactsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: artifacts directory not found - run 'npx hardhat compile' first", ErrArtifactNotFound)
	}

	var entries []Entry
	err := filepath.Walk(artifactsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") || strings.HasSuffix(info.Name(), ".dbg.json") {
			return nil
		}

		raw, err := readHardhatArtifact(path)
		if err != nil || !strings.HasPrefix(raw.Format, "hh") {
			return nil
		}
		if !Included(raw.ContractName, opts.Contracts) || Excluded(raw.ContractName, opts.Exclude) {
			return nil
		}
		if !opts.Dependencies && !strings.HasPrefix(raw.SourceName, "contracts/") {
			return nil
		}

		entries = append(entries, Entry{Name: raw.ContractName, SourcePath: raw.SourceName, Path: path})
		return nil
	})

	return entries, err
}

// Parse parses a Hardhat artifact file. Compiler settings come from the
// build-info referenced by the sibling .dbg.json, when present.
func (b *HardhatBuilder) Parse(artifactPath string) (*ContractArtifact, error) {
	raw, err := readHardhatArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	artifact, err := newArtifact(name, raw.SourceName, artifactPath, raw.ABI, raw.Bytecode, raw.DeployedBytecode)
	if err != nil {
		return nil, err
	}
	artifact.Builder = b.Name()

	if bi, err := b.buildInfoFor(artifactPath); err == nil {
		artifact.CompilerVersion = bi.SolcLongVersion
		var settings buildInfoSettings
		if err := json.Unmarshal(bi.Input, &settings); err == nil {
			artifact.Optimizer = settings.Settings.Optimizer
			artifact.EVMVersion = settings.Settings.EVMVersion
		}
	}
	return artifact, nil
}

// VerificationInput uses the build-info the artifact was compiled in
func (b *HardhatBuilder) VerificationInput(dir string, artifact *ContractArtifact) (*VerificationInput, error) {
	if bi, err := b.buildInfoFor(artifact.Path); err == nil {
		return bi.VerificationInput()
	}

	buildInfoDir := filepath.Join(dir, "artifacts", "build-info")
	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory: %w", err)
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		bi, err := ReadBuildInfo(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil || !bi.Produced(artifact.SourcePath, artifact.Name) {
			continue
		}
		return bi.VerificationInput()
	}
	return nil, fmt.Errorf("build-info not found for contract %s", artifact.Name)
}

// buildInfoFor follows <Name>.dbg.json to the build-info file
func (b *HardhatBuilder) buildInfoFor(artifactPath string) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, err
	}
	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%s has no buildInfo", dbgPath)
	}
	return ReadBuildInfo(filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo)))
}

// hardhatArtifact is the hh-sol-artifact-1 file format
type hardhatArtifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

func readHardhatArtifact(path string) (*hardhatArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	return &raw, nil
}
