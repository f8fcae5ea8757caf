// Package rules holds the versioned exclusion rule set used to suppress
// known microarray chip artifacts. Rule sets are loaded once at run start
// and read-only thereafter, so clinical rule changes ship as data, not as
// a new pipeline binary.
package rules

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Outcome is the decision recorded for an rsid in the rule set.
type Outcome string

const (
	// OutcomeExclude discards the call entirely: it never reaches
	// validation, scoring, or reporting.
	OutcomeExclude Outcome = "exclude"
)

// RuleSet maps rsids to rule outcomes. The zero value excludes nothing.
type RuleSet struct {
	Version string
	rules   map[string]Outcome
}

// ruleSetFile is the on-disk YAML shape of a rule set.
type ruleSetFile struct {
	Version string   `yaml:"version"`
	Exclude []string `yaml:"exclude"`
}

// Load reads a rule set from a YAML file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a rule set from YAML bytes.
func Parse(data []byte) (*RuleSet, error) {
	var f ruleSetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: unmarshal")
	}
	return FromList(f.Version, f.Exclude), nil
}

// FromList builds a rule set that excludes the given rsids. Empty entries
// and surrounding whitespace are dropped, so comma-separated config values
// can be split and passed in directly.
func FromList(version string, rsids []string) *RuleSet {
	rs := &RuleSet{Version: version, rules: make(map[string]Outcome, len(rsids))}
	for _, id := range rsids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		rs.rules[id] = OutcomeExclude
	}
	return rs
}

// Excluded reports whether the rsid is a known false-positive pattern.
func (rs *RuleSet) Excluded(rsid string) bool {
	if rs == nil {
		return false
	}
	return rs.rules[rsid] == OutcomeExclude
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}
