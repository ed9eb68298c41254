package fakeserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Serve runs the fake MCP server until in closes, reading one JSON-RPC
// message per line and answering per the scripted Config.
func Serve(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	srv := &fake{cfg: cfg, out: out, attempts: make(map[string]int)}

	for _, line := range cfg.StderrLines {
		fmt.Fprintln(os.Stderr, line)
	}

	reader := bufio.NewReader(in)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(bytes.TrimSpace(line), &req); err != nil {
			return err
		}
		srv.handle(req)
	}
}

type fake struct {
	cfg      Config
	out      io.Writer
	requests int
	attempts map[string]int
}

func (f *fake) handle(req rpcRequest) {
	f.requests++
	f.attempts[req.Method]++

	if f.cfg.CrashOnNthRequest > 0 && f.requests >= f.cfg.CrashOnNthRequest {
		os.Exit(f.cfg.CrashExitCode)
	}
	if f.cfg.CrashOnMethod != "" && req.Method == f.cfg.CrashOnMethod {
		os.Exit(f.cfg.CrashExitCode)
	}

	if delay, ok := f.cfg.Delays[req.Method]; ok {
		time.Sleep(delay)
	}

	for _, m := range f.cfg.NeverReply {
		if m == req.Method {
			return
		}
	}

	if f.cfg.Malformed {
		f.out.Write([]byte("this is not valid json\n"))
		return
	}

	if attempt, ok := f.cfg.FailOnAttempt[req.Method]; ok && f.attempts[req.Method] == attempt {
		f.respondError(req.ID, RPCError{Code: -32603, Message: "simulated failure"})
		return
	}
	if rpcErr, ok := f.cfg.Errors[req.Method]; ok {
		f.respondError(req.ID, rpcErr)
		return
	}

	if f.cfg.ProgressOnMethod == req.Method {
		f.emitProgress()
	}

	switch req.Method {
	case "initialize":
		var params struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		_ = json.Unmarshal(req.Params, &params)
		version := params.ProtocolVersion
		if version == "" {
			version = "2024-11-05"
		}
		f.respond(req.ID, initializeResult{
			ProtocolVersion: version,
			ServerInfo:      serverInfo{Name: "fake-server", Version: "1.0.0"},
			Capabilities:    capabilities{Tools: &toolsCapability{ListChanged: true}},
		})

	case "ping":
		f.respond(req.ID, struct{}{})

	case "tools/list":
		tools := f.cfg.Tools
		if tools == nil {
			tools = []Tool{}
		}
		f.respond(req.ID, toolsListResult{Tools: tools})

	case "tools/call":
		var params toolCallParams
		_ = json.Unmarshal(req.Params, &params)
		if f.cfg.EchoToolCalls {
			text := params.Name
			if len(params.Arguments) > 0 {
				text += " " + string(params.Arguments)
			}
			f.respond(req.ID, toolCallResult{Content: []contentBlock{{Type: "text", Text: text}}})
			return
		}
		f.respondError(req.ID, RPCError{Code: -32601, Message: "unknown tool"})

	case "notifications/initialized":
		for _, method := range f.cfg.NotifyAfterInit {
			writeNotification(f.out, method, struct{}{})
		}

	case "notifications/cancelled":
		// Client cancelled one of its requests; nothing to answer.

	default:
		if req.ID == nil {
			return
		}
		f.respondError(req.ID, RPCError{Code: -32601, Message: "method not found"})
	}
}

// emitProgress streams the scripted progress notifications, ending at the
// configured total so observers see a completed operation.
func (f *fake) emitProgress() {
	steps := f.cfg.ProgressSteps
	if steps <= 0 {
		steps = 1
	}
	total := f.cfg.ProgressTotal
	if total <= 0 {
		total = 100
	}
	token := f.cfg.ProgressToken
	if token == "" {
		token = "fake-progress"
	}
	for i := 1; i <= steps; i++ {
		writeNotification(f.out, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      total * float64(i) / float64(steps),
			"total":         total,
		})
	}
}

func (f *fake) respond(id json.RawMessage, result any) {
	f.noise()
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	writeLine(f.out, rpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func (f *fake) respondError(id json.RawMessage, rpcErr RPCError) {
	f.noise()
	writeLine(f.out, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcErr})
}

// noise interleaves stream-realism messages before a response.
func (f *fake) noise() {
	if f.cfg.SendNotificationBeforeResponse {
		writeNotification(f.out, "test/noise", nil)
	}
	if f.cfg.SendMismatchedIDFirst {
		writeLine(f.out, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage(`"no-such-request"`), Result: json.RawMessage(`{}`)})
	}
}
