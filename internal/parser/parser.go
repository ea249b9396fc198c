// Package parser extracts structured test counts from raw tool output.
//
// Extraction is rule-driven: each count has a regular expression rule, so
// structured output formats or new toolchains can be substituted without
// touching the gate logic. Rule sets are keyed by toolchain identity (see
// RulesFor) and can be overridden per project via a rules file or config.
package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mrz1836/cadence/internal/domain"
)

// Rules enumerates the extraction rules for one toolchain.
//
// Each pattern is a regular expression. A pattern with a capture group
// extracts the number captured by group 1, summed across all matches (tools
// that print one summary per package emit several). A pattern without a
// capture group counts its matches instead, which fits tools that print one
// marker line per test ("--- FAIL: ..."). An empty pattern means the
// toolchain does not emit that figure.
type Rules struct {
	Toolchain       string `yaml:"toolchain" mapstructure:"toolchain"`
	TotalPattern    string `yaml:"total_pattern" mapstructure:"total_pattern"`
	PassedPattern   string `yaml:"passed_pattern" mapstructure:"passed_pattern"`
	FailedPattern   string `yaml:"failed_pattern" mapstructure:"failed_pattern"`
	SkippedPattern  string `yaml:"skipped_pattern" mapstructure:"skipped_pattern"`
	CoveragePattern string `yaml:"coverage_pattern" mapstructure:"coverage_pattern"`
}

// Merge returns a copy of r with any non-empty fields of override applied.
// Used to layer per-project pattern overrides on top of a preset.
func (r Rules) Merge(override Rules) Rules {
	if override.Toolchain != "" {
		r.Toolchain = override.Toolchain
	}
	if override.TotalPattern != "" {
		r.TotalPattern = override.TotalPattern
	}
	if override.PassedPattern != "" {
		r.PassedPattern = override.PassedPattern
	}
	if override.FailedPattern != "" {
		r.FailedPattern = override.FailedPattern
	}
	if override.SkippedPattern != "" {
		r.SkippedPattern = override.SkippedPattern
	}
	if override.CoveragePattern != "" {
		r.CoveragePattern = override.CoveragePattern
	}
	return r
}

// Partial is the parsed portion of a phase result. Missing counts default to
// zero because different toolchains emit partial summaries; a missing
// coverage figure yields a nil CoveragePercent, which the gate engine treats
// as "no coverage signal available" rather than "0% coverage".
type Partial struct {
	Counts          domain.TestCounts
	CoveragePercent *float64

	// ParseIncomplete is set when a rule failed to compile or a numeric
	// capture was malformed. Non-fatal: the affected counts default to 0.
	ParseIncomplete bool

	// Warnings describes each parse problem encountered.
	Warnings []string
}

// Parse extracts structured counts from raw output using the given rules.
// Parsing failures are reported as warnings, never as errors.
func Parse(raw string, rules Rules) Partial {
	p := Partial{}

	p.Counts.Total = p.extractCount(raw, rules.TotalPattern, "total")
	p.Counts.Passed = p.extractCount(raw, rules.PassedPattern, "passed")
	p.Counts.Failed = p.extractCount(raw, rules.FailedPattern, "failed")
	p.Counts.Skipped = p.extractCount(raw, rules.SkippedPattern, "skipped")
	p.CoveragePercent = p.extractCoverage(raw, rules.CoveragePattern)

	p.reconcileTotal()

	return p
}

// reconcileTotal enforces total == passed+failed+skipped. Toolchains that
// omit a total get it computed; a total larger than the parts attributes the
// remainder to skipped (tools commonly omit the skip figure); a total
// smaller than the parts is corrected upward with a warning.
func (p *Partial) reconcileTotal() {
	sum := p.Counts.Passed + p.Counts.Failed + p.Counts.Skipped

	switch {
	case p.Counts.Total == sum:
		// Consistent as reported.
	case p.Counts.Total > sum:
		p.Counts.Skipped += p.Counts.Total - sum
	default:
		if p.Counts.Total != 0 {
			p.warnf("reported total %d is less than passed+failed+skipped %d, using the sum", p.Counts.Total, sum)
		}
		p.Counts.Total = sum
	}
}

// extractCount applies one rule and returns the extracted count.
func (p *Partial) extractCount(raw, pattern, name string) int {
	if pattern == "" {
		return 0
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		p.warnf("%s pattern does not compile: %v", name, err)
		p.ParseIncomplete = true
		return 0
	}

	matches := re.FindAllStringSubmatch(raw, -1)
	if matches == nil {
		return 0
	}

	// No capture group: the count is the number of matching lines.
	if re.NumSubexp() == 0 {
		return len(matches)
	}

	sum := 0
	for _, m := range matches {
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			p.warnf("%s capture %q is not a number", name, m[1])
			p.ParseIncomplete = true
			return 0
		}
		if n < 0 {
			p.warnf("%s capture %d is negative", name, n)
			p.ParseIncomplete = true
			return 0
		}
		sum += n
	}
	return sum
}

// extractCoverage applies the coverage rule. The merged figure is the
// maximum across matches; nil means no signal was present.
func (p *Partial) extractCoverage(raw, pattern string) *float64 {
	if pattern == "" {
		return nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		p.warnf("coverage pattern does not compile: %v", err)
		p.ParseIncomplete = true
		return nil
	}
	if re.NumSubexp() == 0 {
		p.warnf("coverage pattern has no capture group")
		p.ParseIncomplete = true
		return nil
	}

	matches := re.FindAllStringSubmatch(raw, -1)
	if matches == nil {
		return nil
	}

	var best *float64
	for _, m := range matches {
		v, convErr := strconv.ParseFloat(m[1], 64)
		if convErr != nil {
			p.warnf("coverage capture %q is not a number", m[1])
			p.ParseIncomplete = true
			continue
		}
		if v < 0 || v > 100 {
			p.warnf("coverage capture %.2f outside [0,100]", v)
			p.ParseIncomplete = true
			continue
		}
		if best == nil || v > *best {
			val := v
			best = &val
		}
	}
	return best
}

func (p *Partial) warnf(format string, args ...any) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}
