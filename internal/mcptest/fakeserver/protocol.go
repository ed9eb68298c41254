// Package fakeserver implements a scriptable MCP server speaking
// newline-delimited JSON-RPC on stdin/stdout, for exercising the client
// runtime in tests.
package fakeserver

import (
	"encoding/json"
	"io"
	"time"
)

// Config scripts the fake server's behavior.
type Config struct {
	// Tools returned from tools/list.
	Tools []Tool `json:"tools"`

	// Per-method response delays. Keep these short (10-50ms) in tests.
	Delays map[string]time.Duration `json:"delays"`

	// Per-method forced error responses.
	Errors map[string]RPCError `json:"errors"`

	// Methods whose requests are read and then silently dropped. Drives
	// timeout and cancellation tests.
	NeverReply []string `json:"neverReply"`

	// Crash behavior.
	CrashOnMethod     string `json:"crashOnMethod"`
	CrashOnNthRequest int    `json:"crashOnNthRequest"`
	CrashExitCode     int    `json:"crashExitCode"`

	// Fail a method on one specific attempt (1-indexed), succeed otherwise.
	FailOnAttempt map[string]int `json:"failOnAttempt"`

	// Progress streaming: before responding to the configured method, emit
	// ProgressSteps notifications/progress messages for ProgressToken,
	// finishing at ProgressTotal (the client should see completion).
	ProgressOnMethod string  `json:"progressOnMethod"`
	ProgressToken    string  `json:"progressToken"`
	ProgressSteps    int     `json:"progressSteps"`
	ProgressTotal    float64 `json:"progressTotal"`

	// Notifications sent once, right after the initialized notification
	// arrives (method names only, empty params).
	NotifyAfterInit []string `json:"notifyAfterInit"`

	// Stream realism: interleave noise before each response.
	SendNotificationBeforeResponse bool `json:"sendNotificationBeforeResponse"`
	SendMismatchedIDFirst          bool `json:"sendMismatchedIDFirst"`

	// Write invalid JSON instead of responses.
	Malformed bool `json:"malformed"`

	// tools/call echoes the tool name and arguments back as text.
	EchoToolCalls bool `json:"echoToolCalls"`

	// Lines written to stderr on startup.
	StderrLines []string `json:"stderrLines"`
}

// Tool is a tool definition served from tools/list.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      serverInfo   `json:"serverInfo"`
	Capabilities    capabilities `json:"capabilities"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct {
	Tools *toolsCapability `json:"tools,omitempty"`
}

type toolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

func writeLine(out io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	out.Write(data)
	out.Write([]byte("\n"))
}

func writeNotification(out io.Writer, method string, params any) {
	writeLine(out, rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}
