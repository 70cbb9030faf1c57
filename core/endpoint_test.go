package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Requirement: the backend endpoint catalog lists every consumed endpoint with
// a unique method/path pair and metadata set.
func TestBackendEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		wantPath   string
		wantMethod string
		wantOpID   string
	}{
		{name: "login", wantPath: "/auth/telegram", wantMethod: "POST", wantOpID: "loginWithTelegram"},
		{name: "refresh", wantPath: "/auth/refresh", wantMethod: "POST", wantOpID: "refreshToken"},
		{name: "user", wantPath: "/user", wantMethod: "GET", wantOpID: "getUser"},
		{name: "subscription", wantPath: "/user/subscription", wantMethod: "GET", wantOpID: "getSubscription"},
		{name: "payments", wantPath: "/user/payments", wantMethod: "GET", wantOpID: "getPayments"},
		{name: "user servers", wantPath: "/user/servers", wantMethod: "GET", wantOpID: "getUserServers"},
		{name: "servers", wantPath: "/servers", wantMethod: "GET", wantOpID: "getServers"},
		{name: "server config", wantPath: "/servers/{id}/config", wantMethod: "GET", wantOpID: "getServerConfig"},
		{name: "delete server config", wantPath: "/servers/{id}/config", wantMethod: "DELETE", wantOpID: "deleteServerConfig"},
		{name: "create payment", wantPath: "/billing/create", wantMethod: "POST", wantOpID: "createPayment"},
		{name: "apply promo", wantPath: "/promo/apply", wantMethod: "POST", wantOpID: "applyPromoCode"},
	}

	endpoints := BackendEndpoints()
	assert.Len(t, endpoints, len(tests))

	seen := make(map[string]bool)
	for _, ep := range endpoints {
		key := ep.Method + " " + ep.Path
		assert.False(t, seen[key], "duplicate endpoint %s", key)
		seen[key] = true
		assert.NotEmpty(t, ep.Metadata.Description, key)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.wantOpID, OperationFor(test.wantMethod, test.wantPath))
		})
	}
}

func TestEndpoint_Format(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "plain id", args: []string{"srv-1"}, want: "/servers/srv-1/config"},
		{name: "escapes slashes", args: []string{"a/b"}, want: "/servers/a%2Fb/config"},
		{name: "no args keeps template", want: "/servers/{id}/config"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, EndpointServerConfig.Format(test.args...))
		})
	}
}

func TestOperationFor(t *testing.T) {
	assert.Equal(t, "getServerConfig", OperationFor("GET", "/servers/srv-9/config"))
	assert.Equal(t, "deleteServerConfig", OperationFor("DELETE", "/servers/srv-9/config"))
	assert.Equal(t, "getPayments", OperationFor("GET", "/user/payments?limit=10"))
	assert.Equal(t, "other", OperationFor("GET", "/servers//config"))
	assert.Equal(t, "other", OperationFor("PUT", "/user"))
}
