package artifacts

import (
	"bytes"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// MatchType classifies a bytecode comparison
type MatchType string

const (
	MatchFull    MatchType = "full"
	MatchPartial MatchType = "partial"
	MatchNone    MatchType = "none"
)

// CodeMatch is the result of comparing on-chain code with an artifact
type CodeMatch struct {
	Match     bool      `json:"match"`
	MatchType MatchType `json:"matchType"`
	Message   string    `json:"message"`
}

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	// 2-byte length prefix precedes the marker
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// CompareBytecode compares runtime code read from the chain with the
// artifact's deployed bytecode.
func CompareBytecode(onchain, expected []byte) *CodeMatch {
	if len(onchain) == 0 {
		return &CodeMatch{MatchType: MatchNone, Message: "No code at address"}
	}
	if len(expected) == 0 {
		return &CodeMatch{MatchType: MatchNone, Message: "Artifact has no linked deployed bytecode"}
	}

	if bytes.Equal(onchain, expected) {
		return &CodeMatch{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(onchain), StripMetadata(expected)) {
		return &CodeMatch{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &CodeMatch{
		MatchType: MatchNone,
		Message:   "Bytecode does not match (immutable variables also cause this)",
	}
}
