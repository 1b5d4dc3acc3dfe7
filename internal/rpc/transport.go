package rpc

import "context"

// Backend method names.
const (
	MethodLogin       = "Session.login"
	MethodRenew       = "Session.renew"
	MethodLogout      = "Session.logout"
	MethodRunScript   = "ReGa.runScript"
	MethodGetValue    = "Interface.getValue"
	MethodSetValue    = "Interface.setValue"
	MethodGetParamset = "Interface.getParamset"
	MethodPutParamset = "Interface.putParamset"
	MethodListDevices = "Interface.listDevices"
)

// sessionParam is the request parameter carrying the session token.
const sessionParam = "_session_id_"

// Transport sends one call to the backend and returns the decoded result.
// The wire format, socket handling and request timeouts are its concern;
// implementations must be safe for concurrent use.
type Transport interface {
	Call(ctx context.Context, method string, params map[string]any) (any, error)
}

// Logger is the minimal logging interface this package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
