package artifacts

import (
	"fmt"
	"strings"

	"github.com/pendergraft/contraship/internal/validation"
)

// Resolver maps contract names to artifacts under one project root
type Resolver struct {
	root     string
	builders []Builder
}

// NewResolver creates a resolver for root. With no builders given it uses
// Foundry then Hardhat.
func NewResolver(root string, builders ...Builder) *Resolver {
	if len(builders) == 0 {
		builders = []Builder{NewFoundryBuilder(), NewHardhatBuilder()}
	}
	return &Resolver{root: root, builders: builders}
}

// Root returns the project root
func (r *Resolver) Root() string {
	return r.root
}

// Builder detects which build tool produced the project
func (r *Resolver) Builder() (Builder, error) {
	for _, b := range r.builders {
		detected, err := b.Detect(r.root)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrNoBuilder, r.root)
}

// Discover lists deployable artifacts
func (r *Resolver) Discover(opts DiscoverOptions) ([]Entry, error) {
	b, err := r.Builder()
	if err != nil {
		return nil, err
	}
	return b.Discover(r.root, opts)
}

// Resolve returns the artifact for name. A bare name must be unique across
// the project; a qualified name selects by source path. Dependency contracts
// are considered so proxies and libraries can be deployed by name.
func (r *Resolver) Resolve(name validation.ContractName) (*ContractArtifact, error) {
	b, err := r.Builder()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
	}

	entries, err := b.Discover(r.root, DiscoverOptions{
		Contracts:    []string{name.Name()},
		Dependencies: true,
	})
	if err != nil {
		return nil, err
	}

	var matches []Entry
	for _, e := range entries {
		if name.Qualified() && e.SourcePath != name.Source() {
			continue
		}
		matches = append(matches, e)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no compiled output for %s", ErrArtifactNotFound, name)
	case 1:
	default:
		sources := make([]string, len(matches))
		for i, m := range matches {
			sources[i] = m.SourcePath + ":" + m.Name
		}
		return nil, fmt.Errorf("%w: %s is ambiguous, qualify it as one of %s",
			ErrArtifactNotFound, name, strings.Join(sources, ", "))
	}

	artifact, err := b.Parse(matches[0].Path)
	if err != nil {
		return nil, err
	}
	if artifact.SourcePath == "" {
		artifact.SourcePath = matches[0].SourcePath
	}
	return artifact, nil
}

// VerificationInput returns source metadata for a resolved artifact
func (r *Resolver) VerificationInput(artifact *ContractArtifact) (*VerificationInput, error) {
	for _, b := range r.builders {
		if b.Name() == artifact.Builder {
			vi, err := b.VerificationInput(r.root, artifact)
			if err != nil {
				return nil, err
			}
			if err := validation.ValidateCompilerVersion(vi.CompilerVersion); err != nil {
				return nil, fmt.Errorf("verification input for %s: %w", artifact.Name, err)
			}
			return vi, nil
		}
	}
	return nil, fmt.Errorf("no builder %q for %s", artifact.Builder, artifact.Name)
}
