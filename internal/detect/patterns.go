package detect

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/oseligman/claude-autoyes/internal/logging"
)

var patternLog = logging.ForComponent(logging.CompDetect)

// DefaultPromptPatterns returns the built-in confirmation-prompt triggers.
// The list is deliberately small and literal: false negatives are safe,
// false positives inject keystrokes into the user's terminal.
// Patterns prefixed with "re:" are compiled as regex; everything else uses
// strings.Contains, case-sensitive as given.
func DefaultPromptPatterns() []string {
	return []string{
		"Do you want to",
		"Would you like to",
		`re:Proceed\?`,
		"❯ 1. Yes",
	}
}

// PromptMatcher holds the compiled, ready-to-use prompt triggers.
type PromptMatcher struct {
	strs    []string
	regexps []*regexp.Regexp
}

// CompilePromptPatterns compiles raw string patterns into a PromptMatcher.
// Invalid regex patterns are logged as warnings and skipped (never crash).
func CompilePromptPatterns(raw []string) *PromptMatcher {
	m := &PromptMatcher{}
	for _, p := range raw {
		if strings.HasPrefix(p, "re:") {
			re, err := regexp.Compile(p[3:])
			if err != nil {
				patternLog.Warn("invalid_prompt_regex",
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			m.regexps = append(m.regexps, re)
		} else {
			m.strs = append(m.strs, p)
		}
	}
	return m
}

// Matches reports whether the pane content shows an actionable prompt.
// Empty or truncated content never matches.
func (m *PromptMatcher) Matches(content string) bool {
	if content == "" {
		return false
	}
	for _, s := range m.strs {
		if strings.Contains(content, s) {
			return true
		}
	}
	for _, re := range m.regexps {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
