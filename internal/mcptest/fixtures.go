package mcptest

import "time"

// Common fake-server scripts.

// DefaultConfig returns a minimal working fake server.
func DefaultConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools: []Tool{
			{Name: "read_file", Description: "Read a file from disk"},
			{Name: "write_file", Description: "Write content to a file"},
		},
	}
}

// SlowConfig delays one method's responses.
func SlowConfig(method string, delay time.Duration) FakeServerConfig {
	return FakeServerConfig{
		Tools:  []Tool{{Name: "test_tool"}},
		Delays: map[string]time.Duration{method: delay},
	}
}

// NeverReplyConfig swallows requests for the given methods. Initialization
// still succeeds.
func NeverReplyConfig(methods ...string) FakeServerConfig {
	return FakeServerConfig{
		Tools:      []Tool{{Name: "test_tool"}},
		NeverReply: methods,
	}
}

// CrashOnInitConfig exits with the given code when initialize arrives.
func CrashOnInitConfig(exitCode int) FakeServerConfig {
	return FakeServerConfig{
		CrashOnMethod: "initialize",
		CrashExitCode: exitCode,
	}
}

// CrashOnNthRequestConfig exits with the given code on the nth request.
func CrashOnNthRequestConfig(n, exitCode int) FakeServerConfig {
	return FakeServerConfig{
		Tools:             []Tool{{Name: "test_tool"}},
		CrashOnNthRequest: n,
		CrashExitCode:     exitCode,
	}
}

// ErrorOnConfig forces an error response for one method.
func ErrorOnConfig(method string, code int, message string) FakeServerConfig {
	return FakeServerConfig{
		Errors: map[string]RPCError{
			method: {Code: code, Message: message},
		},
	}
}

// ProgressConfig streams progress notifications before answering the given
// method, completing at total.
func ProgressConfig(method, token string, steps int, total float64) FakeServerConfig {
	return FakeServerConfig{
		Tools:            []Tool{{Name: "test_tool"}},
		ProgressOnMethod: method,
		ProgressToken:    token,
		ProgressSteps:    steps,
		ProgressTotal:    total,
	}
}

// NoisyStreamConfig interleaves a notification and a mismatched-id response
// before every real response.
func NoisyStreamConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools:                          []Tool{{Name: "test_tool"}},
		SendNotificationBeforeResponse: true,
		SendMismatchedIDFirst:          true,
	}
}

// EchoToolsConfig answers tools/call by echoing the call back as text.
func EchoToolsConfig() FakeServerConfig {
	return FakeServerConfig{
		Tools: []Tool{
			{Name: "echo", Description: "Echo the input back"},
		},
		EchoToolCalls: true,
	}
}

// StderrConfig writes the given lines to stderr at startup.
func StderrConfig(lines ...string) FakeServerConfig {
	cfg := DefaultConfig()
	cfg.StderrLines = lines
	return cfg
}
