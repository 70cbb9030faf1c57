package core

import (
	"net/url"
	"path"
	"strings"
)

type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteProtected
	RouteAuthOnly
)

func (c RouteClass) String() string {
	switch c {
	case RouteProtected:
		return "protected"
	case RouteAuthOnly:
		return "auth-only"
	default:
		return "public"
	}
}

const (
	DefaultLoginPath     = "/login"
	DefaultLandingPath   = "/dashboard"
	DefaultSelectionPath = "/billing"

	// ReturnParam carries the original path through the login screen.
	ReturnParam = "redirect"
)

// RouteTable is the static route classification.
//
// Protected entries match the path itself and everything below it. AuthOnly
// and Public entries match exactly. Anything unmatched is public.
type RouteTable struct {
	Protected    []string
	AuthOnly     []string
	Public       []string
	SkipPrefixes []string

	LoginPath   string
	LandingPath string
}

func DefaultRouteTable() RouteTable {
	return RouteTable{
		Protected: []string{
			"/dashboard",
			"/billing",
			"/profile",
			"/config",
			"/transactions",
			"/promo",
			"/faq",
		},
		AuthOnly:     []string{DefaultLoginPath},
		Public:       []string{"/", "/terms"},
		SkipPrefixes: []string{"/_next", "/api", "/static", "/assets", "/metrics"},
		LoginPath:    DefaultLoginPath,
		LandingPath:  DefaultLandingPath,
	}
}

// Skip reports whether path is a static asset or backend proxy rather than a
// page navigation.
func (t RouteTable) Skip(p string) bool {
	for _, prefix := range t.SkipPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return strings.Contains(path.Base(p), ".")
}

func (t RouteTable) Classify(p string) RouteClass {
	for _, route := range t.Protected {
		if p == route || strings.HasPrefix(p, route+"/") {
			return RouteProtected
		}
	}
	for _, route := range t.AuthOnly {
		if p == route {
			return RouteAuthOnly
		}
	}
	return RoutePublic
}

type GuardAction int

const (
	GuardProceed GuardAction = iota
	GuardRedirect
	GuardSkip
)

func (a GuardAction) String() string {
	switch a {
	case GuardRedirect:
		return "redirect"
	case GuardSkip:
		return "skip"
	default:
		return "proceed"
	}
}

// Header is one response header set on guarded navigations.
type Header struct {
	Key   string
	Value string
}

// SecurityHeaders are attached to every navigation the guard lets through.
var SecurityHeaders = []Header{
	{Key: "X-Frame-Options", Value: "DENY"},
	{Key: "X-Content-Type-Options", Value: "nosniff"},
	{Key: "Referrer-Policy", Value: "strict-origin-when-cross-origin"},
	{Key: "Permissions-Policy", Value: "camera=(), microphone=(), geolocation=()"},
}

type GuardDecision struct {
	Action   GuardAction
	Class    RouteClass
	Location string
	Headers  []Header
}

// Decide runs the navigation guard for one path. It performs no I/O; the
// caller supplies the current authentication state.
func (t RouteTable) Decide(p string, authenticated bool) GuardDecision {
	if t.Skip(p) {
		return GuardDecision{Action: GuardSkip}
	}

	class := t.Classify(p)
	switch {
	case class == RouteProtected && !authenticated:
		return GuardDecision{
			Action:   GuardRedirect,
			Class:    class,
			Location: LoginLocation(t.loginPath(), p),
		}
	case class == RouteAuthOnly && authenticated:
		return GuardDecision{
			Action:   GuardRedirect,
			Class:    class,
			Location: t.landingPath(),
		}
	}

	return GuardDecision{Action: GuardProceed, Class: class, Headers: SecurityHeaders}
}

func (t RouteTable) loginPath() string {
	if t.LoginPath == "" {
		return DefaultLoginPath
	}
	return t.LoginPath
}

func (t RouteTable) landingPath() string {
	if t.LandingPath == "" {
		return DefaultLandingPath
	}
	return t.LandingPath
}

// LoginLocation builds the login URL that returns to returnTo afterwards.
func LoginLocation(loginPath, returnTo string) string {
	if returnTo == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{ReturnParam: {returnTo}}.Encode()
}

// SafeReturnPath accepts only same-origin absolute paths as a post-login
// target; anything else falls back to fallback.
func SafeReturnPath(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return fallback
	}
	return target
}
