package policy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// DecisionKind classifies the guard's verdict for a request.
type DecisionKind int

const (
	// Allow lets the request proceed to the upstream.
	Allow DecisionKind = iota
	// Redirect sends the browser to Decision.Location.
	Redirect
	// Deny terminates the request with Decision.Status and no body
	// beyond the standard error shape.
	Deny
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the guard's verdict. It carries everything the caller needs
// to act; the guard itself never touches the response.
type Decision struct {
	Kind DecisionKind
	// Location is the redirect target, including the next parameter when
	// the target is the login page. Set only for Redirect.
	Location string
	// Status is the response status. Set only for Deny.
	Status int
	// Rule is the matched pattern, empty when the unmatched default
	// applied. For logs and metrics.
	Rule string
}

// Decide evaluates the request path against the policy. It is a pure
// function of its inputs: same inputs, same decision, no I/O and no clock.
//
// requestURI may carry a query string; matching uses only the path, the
// query is preserved in the next parameter so login returns the user to
// the exact page they asked for.
func (p *Policy) Decide(authenticated bool, requestURI string) Decision {
	path := requestURI
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	for _, r := range p.rules {
		if !r.match(path) {
			continue
		}
		return p.apply(r, authenticated, requestURI)
	}

	fallback := compiledRule{require: p.unmatched}
	d := p.apply(fallback, authenticated, requestURI)
	d.Rule = ""
	return d
}

func (p *Policy) apply(r compiledRule, authenticated bool, requestURI string) Decision {
	if authenticated {
		return Decision{Kind: Allow, Rule: r.pattern}
	}

	switch r.require {
	case domain.RequirePublic:
		return Decision{Kind: Allow, Rule: r.pattern}
	case domain.RequireAuthenticated:
		return Decision{Kind: Redirect, Location: p.withNext(p.loginPath, requestURI), Rule: r.pattern}
	case domain.RequireAuthRedirect:
		return Decision{Kind: Redirect, Location: p.withNext(r.redirect, requestURI), Rule: r.pattern}
	case domain.RequireAuthenticatedAPI:
		return Decision{Kind: Deny, Status: http.StatusUnauthorized, Rule: r.pattern}
	default:
		// Unreachable after New's validation.
		return Decision{Kind: Deny, Status: http.StatusUnauthorized, Rule: r.pattern}
	}
}

// withNext appends the original request URI as the next parameter so the
// post-login redirect can restore it.
func (p *Policy) withNext(target, requestURI string) string {
	if requestURI == "" || requestURI == target {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + p.nextParam + "=" + url.QueryEscape(requestURI)
}
