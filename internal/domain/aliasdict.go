package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliasYAML []byte

// AliasDictionary is the curated table of place nicknames used to generate
// alias variants at cache-fill time. Phrases and variants are stored
// normalized.
type AliasDictionary struct {
	Version string
	Locale  string
	entries []aliasEntry
}

type aliasEntry struct {
	phrase   string
	variants []string
}

type aliasFile struct {
	Version string `yaml:"version"`
	Locale  string `yaml:"locale"`
	Entries []struct {
		Phrase   string   `yaml:"phrase"`
		Variants []string `yaml:"variants"`
	} `yaml:"entries"`
}

// LoadAliasDictionary parses a YAML alias table.
func LoadAliasDictionary(data []byte) (*AliasDictionary, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias dictionary: %w", err)
	}
	if f.Version == "" {
		return nil, errors.New("alias dictionary has no version")
	}
	if f.Locale == "" {
		return nil, errors.New("alias dictionary has no locale")
	}

	d := &AliasDictionary{Version: f.Version, Locale: f.Locale}
	for i, e := range f.Entries {
		phrase := Normalize(e.Phrase)
		if phrase == "" {
			return nil, fmt.Errorf("alias dictionary entry %d: empty phrase", i)
		}
		entry := aliasEntry{phrase: phrase}
		for _, v := range e.Variants {
			if nv := Normalize(v); QueryUsable(nv) {
				entry.variants = append(entry.variants, nv)
			}
		}
		d.entries = append(d.entries, entry)
	}
	return d, nil
}

var (
	defaultDictOnce sync.Once
	defaultDict     *AliasDictionary
)

// DefaultAliasDictionary returns the embedded dictionary. It panics if the
// embedded file is malformed, which the package tests rule out.
func DefaultAliasDictionary() *AliasDictionary {
	defaultDictOnce.Do(func() {
		d, err := LoadAliasDictionary(defaultAliasYAML)
		if err != nil {
			panic(err)
		}
		defaultDict = d
	})
	return defaultDict
}

// Len returns the number of curated phrases.
func (d *AliasDictionary) Len() int {
	return len(d.entries)
}

// Variants returns the normalized alias set for a formatted address: the
// normalized address itself plus the variants of every curated phrase found
// in it. A phrase matches only as a whole run of tokens, never by partial
// token overlap; a wrong alias costs more than a missed one.
func (d *AliasDictionary) Variants(formattedAddress string) []string {
	normalized := Normalize(formattedAddress)
	if normalized == "" {
		return nil
	}

	set := map[string]struct{}{normalized: {}}
	padded := " " + normalized + " "
	for _, e := range d.entries {
		if !strings.Contains(padded, " "+e.phrase+" ") {
			continue
		}
		for _, v := range e.variants {
			set[v] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// GenerateAliasVariants applies the default dictionary.
func GenerateAliasVariants(formattedAddress string) []string {
	return DefaultAliasDictionary().Variants(formattedAddress)
}
