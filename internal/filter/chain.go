// Package filter implements the relay's rule matching engine.
package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"relay_bot/internal/model"
)

// compiledRule is a FilterRule prepared for repeated evaluation: the value
// is lowercased and patterns are compiled exactly once.
type compiledRule struct {
	kind          model.FilterKind
	value         string
	loweredValue  string
	caseSensitive bool
	re            *regexp.Regexp
}

// Chain is a precompiled, immutable set of active filter rules. Evaluation
// is pure and has no side effects, so a Chain is safe for concurrent use.
type Chain struct {
	rules []compiledRule
}

// Compile builds a Chain from the given rules. Inactive rules are dropped.
// A rule with an invalid pattern is logged and skipped rather than failing
// the whole chain; one malformed rule must not block the pipeline.
func Compile(rules []model.FilterRule, log *slog.Logger) *Chain {
	c := &Chain{}
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		cr := compiledRule{
			kind:          r.Kind,
			value:         r.Value,
			loweredValue:  strings.ToLower(r.Value),
			caseSensitive: r.CaseSensitive,
		}
		if r.Kind == model.FilterPattern {
			re, err := compilePattern(r.Value, r.CaseSensitive)
			if err != nil {
				log.Warn("skipping invalid filter pattern", "filter_id", r.ID, "pattern", r.Value, "error", err)
				continue
			}
			cr.re = re
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Len returns the number of usable rules in the chain.
func (c *Chain) Len() int {
	return len(c.rules)
}

// Evaluate reports whether text passes every rule in the chain. An empty
// chain passes everything. Evaluation short-circuits on the first failing
// rule; rule order affects cost only, never the result.
func (c *Chain) Evaluate(text string) bool {
	for _, r := range c.rules {
		if !r.matches(text) {
			return false
		}
	}
	return true
}

func (r compiledRule) matches(text string) bool {
	switch r.kind {
	case model.FilterInclude:
		return contains(text, r)
	case model.FilterExclude:
		return !contains(text, r)
	case model.FilterPattern:
		return r.re.MatchString(text)
	}
	return true
}

func contains(text string, r compiledRule) bool {
	if r.caseSensitive {
		return strings.Contains(text, r.value)
	}
	return strings.Contains(strings.ToLower(text), r.loweredValue)
}

func compilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// ValidatePattern checks whether a pattern is a valid regular expression.
func ValidatePattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}
