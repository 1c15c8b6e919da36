// Package testing provides an in-memory SSHClient for tests.
package testing

import (
	"errors"
	"regexp"
	"sync"

	"github.com/nso-developer/nsocmd/pkg/sshutil"
)

// CommandResponse defines a canned response for a command.
type CommandResponse struct {
	Output   []byte
	ExitCode int
	Error    error
}

// MockClient simulates an SSH connection by replaying canned responses.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	closed   bool
	exact    map[string][]CommandResponse
	patterns []patternResponse
	fallback CommandResponse
	calls    []string
}

type patternResponse struct {
	re   *regexp.Regexp
	resp CommandResponse
}

var _ sshutil.SSHClient = (*MockClient)(nil)

// NewMockClient creates a mock client whose unmatched commands succeed
// with empty output.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:    host,
		address: host + ":22",
		exact:   make(map[string][]CommandResponse),
	}
}

// SetCommandResponse queues a response for an exact command string.
// Queued responses are consumed in order; the last one repeats.
func (m *MockClient) SetCommandResponse(cmd string, resp ...CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[cmd] = append(m.exact[cmd], resp...)
}

// SetPatternResponse registers a response for commands matching pattern.
func (m *MockClient) SetPatternResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, patternResponse{re: regexp.MustCompile(pattern), resp: resp})
}

// SetFallback sets the response for commands nothing else matches.
func (m *MockClient) SetFallback(resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// ExecCombined records cmd and returns the matching canned response.
func (m *MockClient) ExecCombined(cmd string) ([]byte, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, -1, errors.New("connection closed")
	}
	m.calls = append(m.calls, cmd)

	if queue := m.exact[cmd]; len(queue) > 0 {
		resp := queue[0]
		if len(queue) > 1 {
			m.exact[cmd] = queue[1:]
		}
		return resp.Output, resp.ExitCode, resp.Error
	}

	for _, p := range m.patterns {
		if p.re.MatchString(cmd) {
			return p.resp.Output, p.resp.ExitCode, p.resp.Error
		}
	}

	return m.fallback.Output, m.fallback.ExitCode, m.fallback.Error
}

// Calls returns the commands executed so far.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}
