package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is a 64-bit stream seed. It accepts decimal or 0x-prefixed hex in YAML,
// JSON strings and environment variables, and always prints as hex.
type Seed uint64

// ParseSeed parses a decimal, 0x hex, 0o octal or 0b binary seed.
func ParseSeed(s string) (Seed, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q: %w", s, err)
	}
	return Seed(v), nil
}

func (s Seed) String() string { return fmt.Sprintf("%#016x", uint64(s)) }

func (s Seed) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Seed) UnmarshalText(b []byte) error {
	v, err := ParseSeed(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON accepts a JSON number or string.
func (s *Seed) UnmarshalJSON(b []byte) error {
	return s.UnmarshalText(bytes.Trim(b, `"`))
}

func (s *Seed) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: seed must be a scalar", n.Line)
	}
	return s.UnmarshalText([]byte(n.Value))
}

// Uint64s converts seeds to plain integers.
func Uint64s(seeds []Seed) []uint64 {
	out := make([]uint64, len(seeds))
	for i, s := range seeds {
		out[i] = uint64(s)
	}
	return out
}
