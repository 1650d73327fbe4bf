package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
)

// BuildInfo is a build-info file (hh-sol-build-info-1 format, shared by
// Foundry and Hardhat)
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`     // Short: "0.8.28"
	SolcLongVersion string          `json:"solcLongVersion"` // Full: "0.8.28+commit.7893614a"
	Input           json.RawMessage `json:"input"`           // Standard JSON Input
	Output          json.RawMessage `json:"output"`          // Compilation output
}

// buildInfoOutputContracts represents output.contracts from Solidity compiler output
type buildInfoOutputContracts map[string]map[string]json.RawMessage

// buildInfoSettings is the subset of input.settings recorded on artifacts
type buildInfoSettings struct {
	Settings struct {
		Optimizer  Optimizer `json:"optimizer"`
		EVMVersion string    `json:"evmVersion"`
	} `json:"settings"`
}

// ReadBuildInfo loads a build-info file
func ReadBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build-info: %w", err)
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("parsing build-info %s: %w", path, err)
	}
	return &bi, nil
}

// Produced reports whether this compilation emitted contracts[sourcePath][name]
func (bi *BuildInfo) Produced(sourcePath, name string) bool {
	if len(bi.Output) == 0 {
		return false
	}
	var output struct {
		Contracts buildInfoOutputContracts `json:"contracts"`
	}
	if err := json.Unmarshal(bi.Output, &output); err != nil || output.Contracts == nil {
		return false
	}
	sourceContracts, ok := output.Contracts[sourcePath]
	if !ok {
		return false
	}
	_, ok = sourceContracts[name]
	return ok
}

// VerificationInput converts the compiler input into a verification payload
func (bi *BuildInfo) VerificationInput() (*VerificationInput, error) {
	stdJSON, err := StandardJSON(bi.Input)
	if err != nil {
		return nil, err
	}
	version := bi.SolcLongVersion
	if version == "" {
		version = bi.SolcVersion
	}
	return &VerificationInput{StandardJSON: stdJSON, CompilerVersion: version}, nil
}

// standardJSONKeysToStrip are top-level keys Foundry adds that the Solidity compiler rejects.
// The standard JSON input format only allows: language, sources, settings.
var standardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

// StandardJSON removes tool-specific keys from standard JSON input so it
// conforms to the Solidity compiler's expected format.
func StandardJSON(input json.RawMessage) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("build-info has no input")
	}
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range standardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}
