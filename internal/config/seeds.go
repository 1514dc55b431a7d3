package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

//go:embed default_seeds.yaml
var defaultSeedsYAML []byte

// ErrSeedNotFound is returned when no seed has the requested name.
var ErrSeedNotFound = errors.New("seed not found")

type seedsFile struct {
	Seeds []domain.Seed `yaml:"seeds"`
}

// LoadSeeds reads seed definitions from path. A missing file falls back to
// the built-in seed list.
func LoadSeeds(path string) ([]domain.Seed, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || path == "" {
		data = defaultSeedsYAML
	} else if err != nil {
		return nil, fmt.Errorf("read seeds file %s: %w", path, err)
	}
	return ParseSeeds(data)
}

// ParseSeeds decodes and validates a seeds document.
func ParseSeeds(data []byte) ([]domain.Seed, error) {
	var f seedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Seeds))
	for i := range f.Seeds {
		s := &f.Seeds[i]
		if s.Name == "" || s.Type == "" || s.BaseURL == "" {
			return nil, fmt.Errorf("seed %d: name, type and base_url are required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("seed %q defined more than once", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return f.Seeds, nil
}

// FindSeed returns the seed with the given name.
func FindSeed(seeds []domain.Seed, name string) (domain.Seed, error) {
	for _, s := range seeds {
		if s.Name == name {
			return s, nil
		}
	}
	return domain.Seed{}, fmt.Errorf("%w: %s", ErrSeedNotFound, name)
}
