// Package policy implements the ordered route access policy and the pure
// route guard that evaluates it. The policy is loaded once at startup and
// immutable afterwards; an invalid policy is a fatal startup error, never a
// silently-permissive fallback (ADR-021 §5).
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// Rule maps a path pattern to an access requirement. Rules are evaluated
// in declaration order; the first match wins.
type Rule struct {
	// Pattern is an exact path ("/admin") or a prefix pattern ("/admin/*").
	// "/admin/*" matches "/admin" and everything beneath it.
	Pattern string `yaml:"pattern"`
	// Require is one of public, authenticated, authenticated_redirect,
	// authenticated_deny.
	Require domain.RouteRequirement `yaml:"require"`
	// Redirect is the target for authenticated_redirect rules.
	Redirect string `yaml:"redirect,omitempty"`
}

// File is the YAML shape of a policy file.
type File struct {
	// Unmatched is the requirement applied to paths no rule matches:
	// "public" (default) or "authenticated". The shipped default is
	// fail-open; operators wanting fail-closed set this or end the rule
	// list with an explicit catch-all.
	Unmatched domain.RouteRequirement `yaml:"unmatched,omitempty"`
	Rules     []Rule                  `yaml:"rules"`
}

type compiledRule struct {
	pattern  string
	base     string // pattern with the trailing /* removed
	prefix   bool
	require  domain.RouteRequirement
	redirect string
}

func (r compiledRule) match(path string) bool {
	if !r.prefix {
		return path == r.base
	}
	return path == r.base || strings.HasPrefix(path, r.base+"/")
}

// Policy is an immutable, ordered route access policy.
type Policy struct {
	rules     []compiledRule
	unmatched domain.RouteRequirement
	loginPath string
	nextParam string
}

// Load reads and compiles a YAML policy file.
func Load(path, loginPath string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", domain.ErrPolicyInvalid, path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %s", domain.ErrPolicyInvalid, path, err)
	}

	return New(f, loginPath)
}

// New compiles and validates a policy.
func New(f File, loginPath string) (*Policy, error) {
	if loginPath == "" {
		loginPath = domain.DefaultLoginPath
	}
	if !strings.HasPrefix(loginPath, "/") {
		return nil, fmt.Errorf("%w: login path %q must be absolute", domain.ErrPolicyInvalid, loginPath)
	}

	unmatched := f.Unmatched
	switch unmatched {
	case "":
		unmatched = domain.RequirePublic
	case domain.RequirePublic, domain.RequireAuthenticated:
	default:
		return nil, fmt.Errorf("%w: unmatched must be public or authenticated, got %q", domain.ErrPolicyInvalid, unmatched)
	}

	p := &Policy{
		rules:     make([]compiledRule, 0, len(f.Rules)),
		unmatched: unmatched,
		loginPath: loginPath,
		nextParam: domain.LoginNextParam,
	}

	for i, r := range f.Rules {
		c, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%q): %s", domain.ErrPolicyInvalid, i, r.Pattern, err)
		}
		p.rules = append(p.rules, c)
	}

	// A policy that bounces unauthenticated users to an unreachable login
	// page is a redirect loop, not a policy.
	if d := p.Decide(false, loginPath); d.Kind != Allow {
		return nil, fmt.Errorf("%w: login path %q is not publicly reachable", domain.ErrPolicyInvalid, loginPath)
	}

	return p, nil
}

// Default returns the permissive local-development policy: everything
// public. Non-local environments must load an explicit policy file.
func Default(loginPath string) *Policy {
	p, err := New(File{Rules: []Rule{{Pattern: "/*", Require: domain.RequirePublic}}}, loginPath)
	if err != nil {
		// The built-in policy is statically valid.
		panic(err)
	}
	return p
}

func compileRule(r Rule) (compiledRule, error) {
	pattern := r.Pattern
	if pattern == "*" {
		pattern = "/*"
	}
	if !strings.HasPrefix(pattern, "/") {
		return compiledRule{}, fmt.Errorf("pattern must start with /")
	}

	c := compiledRule{pattern: pattern, require: r.Require, redirect: r.Redirect}
	if strings.HasSuffix(pattern, "/*") {
		c.prefix = true
		c.base = strings.TrimSuffix(pattern, "/*")
	} else {
		c.base = pattern
	}
	if strings.Contains(c.base, "*") {
		return compiledRule{}, fmt.Errorf("wildcard only allowed as trailing /*")
	}

	if !domain.IsValidRequirement(r.Require) {
		return compiledRule{}, fmt.Errorf("unknown requirement %q", r.Require)
	}
	if r.Require == domain.RequireAuthRedirect {
		if r.Redirect == "" {
			return compiledRule{}, fmt.Errorf("authenticated_redirect needs a redirect target")
		}
		if !strings.HasPrefix(r.Redirect, "/") {
			return compiledRule{}, fmt.Errorf("redirect target %q must be a local path", r.Redirect)
		}
	} else if r.Redirect != "" {
		return compiledRule{}, fmt.Errorf("redirect target only allowed with authenticated_redirect")
	}

	return c, nil
}

// Len returns the number of compiled rules.
func (p *Policy) Len() int {
	return len(p.rules)
}

// LoginPath returns the login path redirects point at.
func (p *Policy) LoginPath() string {
	return p.loginPath
}
