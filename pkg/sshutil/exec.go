package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/nso-developer/nsocmd/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExecCombined runs a command on the remote host in a fresh session.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) ExecCombined(cmd string) (output []byte, exitCode int, err error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var buf lockedBuffer
	session.Stdout = &buf
	session.Stderr = &buf

	err = session.Run(cmd)
	if err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			return buf.Bytes(), exitErr.ExitStatus(), nil
		}
		return buf.Bytes(), -1, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to execute command on %s", c.Host),
			"The connection may have dropped mid-command.")
	}

	return buf.Bytes(), 0, nil
}

// lockedBuffer serialises writes from the session's stdout and stderr
// copiers, which run on separate goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}
