package rpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// connectionIssuer identifies this package in the connection state tracker.
const connectionIssuer = "rpc"

// scriptExtension is the file suffix for backend script sources.
const scriptExtension = ".fn"

// Config carries the session parameters.
type Config struct {
	// Username and Password authenticate the session. Both must be set
	// before Login succeeds.
	Username string
	Password string

	// RenewThreshold is the session age beyond which the next call renews
	// the session before dispatching. Zero selects the 90 second default.
	RenewThreshold time.Duration

	// Workers bounds the number of calls in flight on the connection.
	// Zero selects a width of one, which serialises all traffic.
	Workers int64

	// ScriptDir is the directory holding backend script sources.
	ScriptDir string
}

// SessionManager owns one authenticated backend session and dispatches
// calls over it.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Concurrency on the wire is
//     bounded by the configured worker width.
type SessionManager struct {
	transport Transport
	creds     Config
	threshold time.Duration
	scriptDir string
	state     *ConnectionState
	log       Logger

	// workers gates calls in flight on the connection.
	workers *semaphore.Weighted

	// now is swappable for tests.
	now func() time.Time

	mu        sync.Mutex
	sessionID string
	refreshed time.Time

	scriptsMu sync.Mutex
	scripts   map[string]string

	// failing is set after the first transport failure so follow-up
	// failures log at debug until the connection recovers.
	failing atomic.Bool
}

// NewSessionManager constructs a manager over the given transport. The
// connection state tracker and logger may be nil.
func NewSessionManager(transport Transport, cfg Config, state *ConnectionState, log Logger) *SessionManager {
	if cfg.RenewThreshold <= 0 {
		cfg.RenewThreshold = 90 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if state == nil {
		state = NewConnectionState()
	}
	if log == nil {
		log = noopLogger{}
	}

	return &SessionManager{
		transport: transport,
		creds:     cfg,
		threshold: cfg.RenewThreshold,
		scriptDir: cfg.ScriptDir,
		state:     state,
		log:       log,
		workers:   semaphore.NewWeighted(cfg.Workers),
		now:       time.Now,
		scripts:   make(map[string]string),
	}
}

// State returns the connection state tracker shared with this manager.
func (m *SessionManager) State() *ConnectionState {
	return m.state
}

// Dispatch sends one authenticated call. It acquires a worker slot, makes
// sure a fresh session exists, injects the session token and normalizes
// any transport failure into a CallError.
//
// Parameters:
//   - ctx: cancels both the wait for a worker slot and the call itself.
//   - method: backend method name.
//   - params: call parameters; the caller's map is not modified.
//
// Returns:
//   - any: the decoded call result.
//   - error: CallError on transport failure, ErrNoCredentials or
//     ErrAuthFailure when no session could be established.
func (m *SessionManager) Dispatch(ctx context.Context, method string, params map[string]any) (any, error) {
	if err := m.workers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("rpc: acquire worker: %w", err)
	}
	defer m.workers.Release(1)

	sid, err := m.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	call := make(map[string]any, len(params)+1)
	for k, v := range params {
		call[k] = v
	}
	call[sessionParam] = sid

	result, err := m.transport.Call(ctx, method, call)
	if err != nil {
		m.reportFailure(method, err)
		return nil, &CallError{Method: method, Err: err}
	}

	m.reportRecovery()
	return result, nil
}

// ensureSession returns a usable session token, logging in or renewing as
// needed.
func (m *SessionManager) ensureSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return m.loginLocked(ctx)
	}

	if m.now().Sub(m.refreshed) >= m.threshold {
		if m.renewLocked(ctx) {
			return m.sessionID, nil
		}
		// Renewal failed; the old token is dead either way. Start over.
		m.sessionID = ""
		return m.loginLocked(ctx)
	}

	return m.sessionID, nil
}

// loginLocked performs a fresh login. Caller holds m.mu.
func (m *SessionManager) loginLocked(ctx context.Context) (string, error) {
	if m.creds.Username == "" || m.creds.Password == "" {
		m.log.Warn("backend login skipped, no credentials configured")
		return "", ErrNoCredentials
	}

	result, err := m.transport.Call(ctx, MethodLogin, map[string]any{
		"username": m.creds.Username,
		"password": m.creds.Password,
	})
	if err != nil {
		m.reportFailure(MethodLogin, err)
		return "", &CallError{Method: MethodLogin, Err: err}
	}

	sid, ok := result.(string)
	if !ok || sid == "" {
		return "", ErrAuthFailure
	}

	m.sessionID = sid
	m.refreshed = m.now()
	m.reportRecovery()
	m.log.Debug("backend session established")
	return sid, nil
}

// renewLocked renews the current session in place. Caller holds m.mu.
// Returns false when the backend refused or the call failed, in which
// case the caller must fall back to a fresh login.
func (m *SessionManager) renewLocked(ctx context.Context) bool {
	result, err := m.transport.Call(ctx, MethodRenew, map[string]any{
		sessionParam: m.sessionID,
	})
	if err != nil {
		m.log.Debug("session renewal failed", "error", err)
		return false
	}

	renewed, ok := result.(bool)
	if !ok || !renewed {
		m.log.Debug("session renewal refused by backend")
		return false
	}

	m.refreshed = m.now()
	return true
}

// Logout drops the current session at the backend. The local token is
// cleared even if the call fails; the backend expires orphaned sessions
// on its own.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return nil
	}

	_, err := m.transport.Call(ctx, MethodLogout, map[string]any{
		sessionParam: m.sessionID,
	})
	m.sessionID = ""
	if err != nil {
		m.log.Debug("backend logout failed", "error", err)
		return &CallError{Method: MethodLogout, Err: err}
	}

	m.log.Debug("backend session closed")
	return nil
}

// RunScript loads the named script source, substitutes ##key## placeholders
// with the given arguments and executes it at the backend.
//
// Script sources are read from disk once per name and cached unsubstituted
// for the process lifetime.
func (m *SessionManager) RunScript(ctx context.Context, name string, args map[string]string) (any, error) {
	script, err := m.script(name)
	if err != nil {
		return nil, err
	}

	for key, value := range args {
		script = strings.ReplaceAll(script, "##"+key+"##", value)
	}

	return m.Dispatch(ctx, MethodRunScript, map[string]any{"script": script})
}

// script returns the raw source for a script name, loading it on first use.
func (m *SessionManager) script(name string) (string, error) {
	m.scriptsMu.Lock()
	defer m.scriptsMu.Unlock()

	if src, ok := m.scripts[name]; ok {
		return src, nil
	}

	path := filepath.Join(m.scriptDir, name+scriptExtension)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrScriptNotFound, name)
		}
		return "", fmt.Errorf("rpc: read script %s: %w", name, err)
	}

	m.scripts[name] = string(data)
	return m.scripts[name], nil
}

// GetValue reads one parameter from a channel's VALUES paramset.
func (m *SessionManager) GetValue(ctx context.Context, interfaceID, channelAddress, parameter string) (any, error) {
	return m.Dispatch(ctx, MethodGetValue, map[string]any{
		"interface": interfaceID,
		"address":   channelAddress,
		"valueKey":  parameter,
	})
}

// SetValue writes one parameter into a channel's VALUES paramset.
func (m *SessionManager) SetValue(ctx context.Context, interfaceID, channelAddress, parameter string, value any) error {
	_, err := m.Dispatch(ctx, MethodSetValue, map[string]any{
		"interface": interfaceID,
		"address":   channelAddress,
		"valueKey":  parameter,
		"value":     value,
	})
	return err
}

// GetParamset reads a whole paramset from a channel.
//
// Returns:
//   - map[string]any: parameter name to value.
//   - error: CallError on transport failure, or a decode error when the
//     backend returns an unexpected shape.
func (m *SessionManager) GetParamset(ctx context.Context, interfaceID, channelAddress, paramsetKey string) (map[string]any, error) {
	result, err := m.Dispatch(ctx, MethodGetParamset, map[string]any{
		"interface":   interfaceID,
		"address":     channelAddress,
		"paramsetKey": paramsetKey,
	})
	if err != nil {
		return nil, err
	}

	values, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rpc: unexpected paramset result type %T", result)
	}
	return values, nil
}

// PutParamset writes multiple parameters into a channel's paramset in one
// call.
func (m *SessionManager) PutParamset(ctx context.Context, interfaceID, channelAddress, paramsetKey string, values map[string]any) error {
	_, err := m.Dispatch(ctx, MethodPutParamset, map[string]any{
		"interface":   interfaceID,
		"address":     channelAddress,
		"paramsetKey": paramsetKey,
		"set":         values,
	})
	return err
}

// reportFailure records a transport failure. The first failure after a
// healthy stretch logs at error, repeats log at debug until recovery.
func (m *SessionManager) reportFailure(method string, err error) {
	if m.failing.CompareAndSwap(false, true) {
		m.log.Error("backend call failed", "method", method, "error", err)
	} else {
		m.log.Debug("backend call failed", "method", method, "error", err)
	}
	m.state.AddIssue(connectionIssuer)
}

// reportRecovery clears the failing flag after a successful call.
func (m *SessionManager) reportRecovery() {
	if m.failing.CompareAndSwap(true, false) {
		m.log.Info("backend connection recovered")
	}
	m.state.RemoveIssue(connectionIssuer)
}
