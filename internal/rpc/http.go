package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultCallTimeout bounds one backend round trip when the caller's
// context carries no deadline.
const defaultCallTimeout = 30 * time.Second

// HTTPConfig configures the HTTP transport to the backend.
type HTTPConfig struct {
	Host string
	Port int

	// Path is the JSON-RPC endpoint path. Empty selects
	// /api/homematic.cgi.
	Path string

	// TLS enables HTTPS. VerifyTLS controls certificate verification;
	// CCU installations commonly run with self-signed certificates.
	TLS       bool
	VerifyTLS bool

	// Timeout bounds one round trip. Zero selects 30 seconds.
	Timeout time.Duration
}

// HTTPTransport speaks the backend's JSON-RPC 1.1 dialect over HTTP.
//
// Every call is one POST carrying a method name and a flat parameter
// object; the response envelope holds either a result or an error with a
// message. Access-denied errors are surfaced as ErrAuthFailure so the
// session layer can re-login.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport constructs a transport for the given backend.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	path := cfg.Path
	if path == "" {
		path = "/api/homematic.cgi"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	transport := http.DefaultTransport
	if cfg.TLS && !cfg.VerifyTLS {
		transport = &http.Transport{
			//nolint:gosec // self-signed backend certificates are the norm
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &HTTPTransport{
		url: fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Host, cfg.Port, path),
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// rpcRequest is the JSON-RPC 1.1 request envelope.
type rpcRequest struct {
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	Version string         `json:"jsonrpc"`
	ID      int            `json:"id"`
}

// rpcError is the error member of a response envelope.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the JSON-RPC 1.1 response envelope.
type rpcResponse struct {
	Result any       `json:"result"`
	Error  *rpcError `json:"error"`
}

// Call sends one method call and returns the decoded result.
//
// Parameters:
//   - ctx: bounds the round trip together with the configured timeout.
//   - method: backend method name.
//   - params: flat parameter object; nil is sent as an empty object.
//
// Returns:
//   - any: the decoded result member.
//   - error: ErrAuthFailure for access-denied responses, otherwise a
//     transport or backend error.
func (t *HTTPTransport) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}

	payload, err := json.Marshal(rpcRequest{
		Method:  method,
		Params:  params,
		Version: "1.1",
		ID:      0,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rpc: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: posting to backend: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing useful to do with a close error

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rpc: reading response: %w", err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("rpc: decoding response (status %d): %w", resp.StatusCode, err)
	}

	if envelope.Error != nil {
		if strings.HasPrefix(envelope.Error.Message, "access denied") {
			return nil, fmt.Errorf("%w: %s", ErrAuthFailure, envelope.Error.Message)
		}
		return nil, fmt.Errorf("rpc: backend error for %s: %s", method, envelope.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc: backend returned status %d", resp.StatusCode)
	}

	return envelope.Result, nil
}
