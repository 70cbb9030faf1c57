package core

import (
	"net/url"
	"strings"
)

// Endpoint describes one backend call this module makes.
type Endpoint struct {
	Path     string
	Method   string
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
}

// Format fills the {placeholders} of Path in order, escaping each value.
func (e Endpoint) Format(args ...string) string {
	var b strings.Builder
	rest := e.Path
	for _, arg := range args {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			break
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(arg))
		rest = rest[open+end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

// Backend endpoints
var (
	EndpointLogin = Endpoint{Method: "POST", Path: "/auth/telegram", Metadata: EndpointMetadata{
		OperationID: "loginWithTelegram",
		Description: "Exchange a Telegram identity assertion for session credentials",
	}}
	EndpointRefresh = Endpoint{Method: "POST", Path: "/auth/refresh", Metadata: EndpointMetadata{
		OperationID: "refreshToken",
		Description: "Exchange a refresh credential for a new access credential",
	}}
	EndpointUser = Endpoint{Method: "GET", Path: "/user", Metadata: EndpointMetadata{
		OperationID: "getUser",
		Description: "Get the current user",
	}}
	EndpointSubscription = Endpoint{Method: "GET", Path: "/user/subscription", Metadata: EndpointMetadata{
		OperationID: "getSubscription",
		Description: "Get the current user's subscription",
	}}
	EndpointPayments = Endpoint{Method: "GET", Path: "/user/payments", Metadata: EndpointMetadata{
		OperationID: "getPayments",
		Description: "Get the current user's payment history",
	}}
	EndpointUserServers = Endpoint{Method: "GET", Path: "/user/servers", Metadata: EndpointMetadata{
		OperationID: "getUserServers",
		Description: "Get the current user's server configs",
	}}
	EndpointServers = Endpoint{Method: "GET", Path: "/servers", Metadata: EndpointMetadata{
		OperationID: "getServers",
		Description: "Get all available servers",
	}}
	EndpointServerConfig = Endpoint{Method: "GET", Path: "/servers/{id}/config", Metadata: EndpointMetadata{
		OperationID: "getServerConfig",
		Description: "Get or create the connection config for a server",
	}}
	EndpointDeleteServerConfig = Endpoint{Method: "DELETE", Path: "/servers/{id}/config", Metadata: EndpointMetadata{
		OperationID: "deleteServerConfig",
		Description: "Delete the connection config for a server",
	}}
	EndpointCreatePayment = Endpoint{Method: "POST", Path: "/billing/create", Metadata: EndpointMetadata{
		OperationID: "createPayment",
		Description: "Create a payment and get the external payment page",
	}}
	EndpointApplyPromo = Endpoint{Method: "POST", Path: "/promo/apply", Metadata: EndpointMetadata{
		OperationID: "applyPromoCode",
		Description: "Validate a promo code and report its discount",
	}}
)

// BackendEndpoints returns every backend endpoint this module calls.
func BackendEndpoints() []Endpoint {
	return []Endpoint{
		EndpointLogin,
		EndpointRefresh,
		EndpointUser,
		EndpointSubscription,
		EndpointPayments,
		EndpointUserServers,
		EndpointServers,
		EndpointServerConfig,
		EndpointDeleteServerConfig,
		EndpointCreatePayment,
		EndpointApplyPromo,
	}
}

// OperationFor returns the operation id of the endpoint matching method and
// a concrete path, or "other".
func OperationFor(method, path string) string {
	for _, ep := range BackendEndpoints() {
		if ep.Method == method && matchTemplate(ep.Path, path) {
			return ep.Metadata.OperationID
		}
	}
	return "other"
}

func matchTemplate(template, path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	tparts := strings.Split(template, "/")
	pparts := strings.Split(path, "/")
	if len(tparts) != len(pparts) {
		return false
	}
	for i, t := range tparts {
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			if pparts[i] == "" {
				return false
			}
			continue
		}
		if t != pparts[i] {
			return false
		}
	}
	return true
}
