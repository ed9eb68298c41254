package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bigsy/mcpherd/internal/cancel"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

// SupportedProtocolVersions lists MCP protocol versions in preference order.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// NotificationHandler receives every inbound notification from the server.
type NotificationHandler func(method string, params json.RawMessage)

// Client speaks the MCP protocol over a Transport. Outbound requests are
// registered with the cancellation registry (when one is attached) so the
// host can cancel them individually, per server, or globally.
type Client struct {
	name      string
	transport Transport
	registry  *cancel.Registry
	handler   NotificationHandler
	logger    *slog.Logger
	timeout   time.Duration

	serverName      string
	serverVersion   string
	protocolVersion string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCancelRegistry attaches a cancellation registry; every request the
// client sends is tracked there until it completes.
func WithCancelRegistry(reg *cancel.Registry) ClientOption {
	return func(c *Client) { c.registry = reg }
}

// WithNotificationHandler sets the handler invoked for inbound notifications.
func WithNotificationHandler(h NotificationHandler) ClientOption {
	return func(c *Client) { c.handler = h }
}

// WithRequestTimeout sets the default per-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an MCP client for the named server on the given transport.
func NewClient(name string, transport Transport, options ...ClientOption) *Client {
	c := &Client{
		name:      name,
		transport: transport,
		logger:    slog.Default(),
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With("server", name)
	return c
}

// initializeParams is the params for the initialize request.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the result of the initialize request.
type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ServerInfo      serverInfo `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// toolsListResult is the result of tools/list.
type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

// toolCallParams is the params for tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult represents the result of a tool call. Content blocks stay raw
// so non-text content passes through untouched.
type ToolResult struct {
	Content []json.RawMessage `json:"content"`
	IsError bool              `json:"isError,omitempty"`
}

// Initialize performs the MCP handshake, trying protocol versions in order
// until one is accepted, then sends the initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	var lastErr error
	for _, version := range SupportedProtocolVersions {
		params := initializeParams{
			ProtocolVersion: version,
			Capabilities:    map[string]any{},
			ClientInfo: clientInfo{
				Name:    "mcpherd",
				Version: "0.1.0",
			},
		}

		var result initializeResult
		err := c.Call(ctx, "initialize", params, &result)
		if err != nil {
			if isProtocolVersionError(err) {
				lastErr = err
				continue
			}
			return err
		}

		c.serverName = result.ServerInfo.Name
		c.serverVersion = result.ServerInfo.Version
		c.protocolVersion = result.ProtocolVersion
		if c.protocolVersion == "" {
			c.protocolVersion = version
		}

		return c.Notify(ctx, protocol.MethodNotificationInitialized, nil)
	}

	if lastErr != nil {
		return protocol.NewError(protocol.CodeProtocolError, "all protocol versions rejected: %v", lastErr)
	}
	return protocol.NewError(protocol.CodeProtocolError, "no protocol versions to try")
}

// isProtocolVersionError checks if an error indicates a version rejection.
func isProtocolVersionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "protocol") && strings.Contains(errStr, "version") ||
		strings.Contains(errStr, "protocolVersion") ||
		strings.Contains(errStr, "unsupported version")
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string { return c.protocolVersion }

// ServerInfo returns the connected server's reported name and version.
func (c *Client) ServerInfo() (name, version string) {
	return c.serverName, c.serverVersion
}

// Ping probes server liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, protocol.MethodPing, nil, nil)
}

// ListTools retrieves the list of tools from the server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result toolsListResult
	if err := c.Call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the server. Arguments and result content are
// opaque payloads.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolResult, error) {
	params := toolCallParams{Name: name, Arguments: arguments}
	var result ToolResult
	if err := c.Call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Call sends a request and decodes its result. A server-reported error is
// returned as the peer's own coded *protocol.Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := protocol.ID(uuid.New().String())
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return protocol.NewError(protocol.CodeInternalError, "build request: %v", err)
	}

	callCtx := ctx
	if c.registry != nil {
		tok := c.registry.Register(string(id), c.name, method, c.timeout)

		var cancelFn context.CancelFunc
		callCtx, cancelFn = context.WithCancel(ctx)
		defer cancelFn()

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-tok.Done():
				cancelFn()
			case <-stop:
			}
		}()

		defer func() {
			if !tok.Cancelled() {
				c.registry.Unregister(string(id))
			}
		}()

		res, err := c.transport.SendRequest(callCtx, msg, c.timeout)
		if err != nil {
			if tok.Cancelled() {
				return protocol.CancelledError("request cancelled: %s", tok.Reason())
			}
			return err
		}
		return decodeResult(res, result)
	}

	res, err := c.transport.SendRequest(callCtx, msg, c.timeout)
	if err != nil {
		return err
	}
	return decodeResult(res, result)
}

func decodeResult(res protocol.Message, result any) error {
	if res.Error != nil {
		return res.Error
	}
	if result != nil && res.Result != nil {
		if err := json.Unmarshal(res.Result, result); err != nil {
			return protocol.NewError(protocol.CodeProtocolError, "unmarshal result: %v", err)
		}
	}
	return nil
}

// Notify sends a notification (no response expected).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return protocol.NewError(protocol.CodeInternalError, "build notification: %v", err)
	}
	return c.transport.Send(ctx, msg)
}

// Run pumps transport events until ctx is cancelled or the transport
// disconnects: inbound notifications go to the notification handler, and
// server-initiated pings are answered. Run is meant to be started as a
// goroutine right after Connect.
func (c *Client) Run(ctx context.Context) {
	events, unsubscribe := c.transport.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case EventNotification:
				if c.handler != nil {
					c.handler(ev.Message.Method, ev.Message.Params)
				}
			case EventRequest:
				if ev.Message.Method == protocol.MethodPing {
					c.answerPing(ctx, ev.Message.ID)
				}
			case EventDisconnected:
				return
			}
		}
	}
}

func (c *Client) answerPing(ctx context.Context, id protocol.ID) {
	msg, err := protocol.NewResponse(id, map[string]any{})
	if err != nil {
		return
	}
	if err := c.transport.Send(ctx, msg); err != nil {
		c.logger.Debug("failed to answer ping", "err", err)
	}
}

// Close disconnects the underlying transport.
func (c *Client) Close() error {
	return c.transport.Disconnect()
}
