package filter

import (
	"io"
	"log/slog"
	"testing"

	"relay_bot/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func active(kind model.FilterKind, value string, caseSensitive bool) model.FilterRule {
	return model.FilterRule{Kind: kind, Value: value, CaseSensitive: caseSensitive, IsActive: true}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		rules []model.FilterRule
		text  string
		want  bool
	}{
		{
			name: "empty chain passes everything",
			text: "anything at all",
			want: true,
		},
		{
			name:  "empty chain passes empty text",
			rules: nil,
			text:  "",
			want:  true,
		},
		{
			name:  "include present",
			rules: []model.FilterRule{active(model.FilterInclude, "release", false)},
			text:  "New RELEASE is out",
			want:  true,
		},
		{
			name:  "include absent",
			rules: []model.FilterRule{active(model.FilterInclude, "release", false)},
			text:  "nothing to see",
			want:  false,
		},
		{
			name:  "exclude matches case-insensitively",
			rules: []model.FilterRule{active(model.FilterExclude, "spam", false)},
			text:  "Buy SPAM now",
			want:  false,
		},
		{
			name:  "exclude absent",
			rules: []model.FilterRule{active(model.FilterExclude, "spam", false)},
			text:  "legitimate update",
			want:  true,
		},
		{
			name:  "case-sensitive include rejects wrong case",
			rules: []model.FilterRule{active(model.FilterInclude, "Go", true)},
			text:  "golang news",
			want:  false,
		},
		{
			name:  "case-sensitive exclude allows wrong case",
			rules: []model.FilterRule{active(model.FilterExclude, "SALE", true)},
			text:  "spring sale starts",
			want:  true,
		},
		{
			name:  "pattern matches",
			rules: []model.FilterRule{active(model.FilterPattern, `v\d+\.\d+`, false)},
			text:  "released v1.22 today",
			want:  true,
		},
		{
			name:  "pattern does not match",
			rules: []model.FilterRule{active(model.FilterPattern, `v\d+\.\d+`, false)},
			text:  "no version here",
			want:  false,
		},
		{
			name: "all rules must pass",
			rules: []model.FilterRule{
				active(model.FilterInclude, "update", false),
				active(model.FilterExclude, "spam", false),
			},
			text: "security update, no spam",
			want: false,
		},
		{
			name: "conjunction passes",
			rules: []model.FilterRule{
				active(model.FilterInclude, "update", false),
				active(model.FilterExclude, "advert", false),
			},
			text: "security update for everyone",
			want: true,
		},
		{
			name: "inactive rule is ignored",
			rules: []model.FilterRule{
				{Kind: model.FilterExclude, Value: "spam", IsActive: false},
			},
			text: "pure spam",
			want: true,
		},
		{
			name:  "media-only event evaluates empty text",
			rules: []model.FilterRule{active(model.FilterInclude, "word", false)},
			text:  "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compile(tt.rules, testLogger())
			if got := c.Evaluate(tt.text); got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	rules := []model.FilterRule{
		active(model.FilterInclude, "go", false),
		active(model.FilterExclude, "rust", false),
		active(model.FilterPattern, `#\w+`, false),
	}
	c := Compile(rules, testLogger())

	text := "go 1.22 released #golang"
	first := c.Evaluate(text)
	for i := 0; i < 100; i++ {
		if got := c.Evaluate(text); got != first {
			t.Fatalf("iteration %d: Evaluate returned %v, first call returned %v", i, got, first)
		}
	}
}

func TestCompileSkipsInvalidPattern(t *testing.T) {
	rules := []model.FilterRule{
		active(model.FilterPattern, `[unclosed`, false),
		active(model.FilterExclude, "spam", false),
	}
	c := Compile(rules, testLogger())

	if c.Len() != 1 {
		t.Fatalf("expected 1 usable rule, got %d", c.Len())
	}
	// The invalid pattern is a no-op; the exclude rule still applies.
	if c.Evaluate("spam here") {
		t.Error("exclude rule should still reject")
	}
	if !c.Evaluate("clean text") {
		t.Error("clean text should pass")
	}
}

func TestValidatePattern(t *testing.T) {
	if err := ValidatePattern(`v\d+`); err != nil {
		t.Errorf("valid pattern rejected: %v", err)
	}
	if err := ValidatePattern(`[unclosed`); err == nil {
		t.Error("invalid pattern accepted")
	}
}
