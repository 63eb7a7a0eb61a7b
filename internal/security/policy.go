package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"toolcall/internal/config"
	"toolcall/internal/domain"
	"toolcall/internal/metrics"
)

// regexPrefix marks a pattern as a regular expression. Anything else is a
// case-insensitive substring.
const regexPrefix = "re:"

// Policy gates local_command with blacklist/whitelist pattern matching.
// Order: blacklist blocks, whitelist allows, then the default policy decides.
type Policy struct {
	defaultAllow bool
	blacklist    []*regexp.Regexp
	whitelist    []*regexp.Regexp
	logger       *slog.Logger
}

var _ domain.CommandPolicy = (*Policy)(nil)

func NewPolicy(cfg config.SecurityConfig, logger *slog.Logger) (*Policy, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Policy{logger: logger}
	switch cfg.DefaultPolicy {
	case "", "allow":
		p.defaultAllow = true
	case "deny":
	default:
		return nil, fmt.Errorf("invalid default policy %q", cfg.DefaultPolicy)
	}

	var err error
	p.blacklist, err = compilePatterns(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("invalid blacklist pattern: %w", err)
	}
	p.whitelist, err = compilePatterns(cfg.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist pattern: %w", err)
	}
	return p, nil
}

// Check returns the action for command and a short reason.
func (p *Policy) Check(command string) (domain.SecurityAction, string) {
	cmd := strings.TrimSpace(command)

	for _, re := range p.blacklist {
		if re.MatchString(cmd) {
			p.logger.Warn("command blocked by blacklist", "command", cmd, "pattern", re.String())
			metrics.PolicyBlock()
			return domain.ActionBlock, "blacklist match: " + re.String()
		}
	}

	for _, re := range p.whitelist {
		if re.MatchString(cmd) {
			return domain.ActionAllow, "whitelist match: " + re.String()
		}
	}

	if p.defaultAllow {
		return domain.ActionAllow, "default policy: allow"
	}
	p.logger.Warn("command blocked by default policy", "command", cmd)
	metrics.PolicyBlock()
	return domain.ActionBlock, "default policy: deny"
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if expr, ok := strings.CutPrefix(p, regexPrefix); ok {
			re, err = regexp.Compile(expr)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
