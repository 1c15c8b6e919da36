package sshutil

// SSHClient defines the interface for SSH command execution.
// Both the real Client and MockClient in the testing subpackage satisfy it.
type SSHClient interface {
	// ExecCombined runs a command and returns stdout and stderr interleaved
	// as written, plus the exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	ExecCombined(cmd string) (output []byte, exitCode int, err error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}
