package situation

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultSeed []byte

// SeedFile is the on-disk format of a situation seed file.
type SeedFile struct {
	Situations []string `yaml:"situations"`
}

// Seeder appends situations to the pool.
type Seeder interface {
	Pool
	InsertSituations(ctx context.Context, texts []string) (int64, error)
}

// ParseSeed decodes a YAML seed document. Blank entries are dropped.
func ParseSeed(data []byte) ([]string, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode situation seed: %w", err)
	}
	out := make([]string, 0, len(f.Situations))
	for _, s := range f.Situations {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// LoadSeedFile reads and decodes a YAML seed file.
func LoadSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read situation seed: %w", err)
	}
	return ParseSeed(data)
}

// DefaultSituations returns the built-in pool.
func DefaultSituations() []string {
	texts, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(err)
	}
	return texts
}

// EnsureSeeded inserts the built-in pool when the store has no situations.
func EnsureSeeded(ctx context.Context, s Seeder) (int64, error) {
	existing, err := s.ListSituations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list situations: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	n, err := s.InsertSituations(ctx, DefaultSituations())
	if err != nil {
		return 0, fmt.Errorf("seed situations: %w", err)
	}
	slog.Info("Seeded default situations", "count", n)
	return n, nil
}
