// Package sshutil connects to the docker host that runs the NSO containers
// and runs invocations on it.
package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/nso-developer/nsocmd/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP connect and the SSH handshake.
const DefaultTimeout = 10 * time.Second

// Options controls how Dial logs in and verifies the remote host.
// The zero value verifies host keys against ~/.ssh/known_hosts.
type Options struct {
	// User is the login user when the destination has no user@ part.
	// It takes precedence over ~/.ssh/config.
	User string

	// IdentityFile is tried before the agent and the default keys.
	IdentityFile string

	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string

	// InsecureIgnoreHostKey accepts any host key.
	InsecureIgnoreHostKey bool

	// ConfigFile defaults to ~/.ssh/config.
	ConfigFile string

	Timeout time.Duration

	// Log defaults to logger.Default().
	Log logger.Logger
}

// Client wraps an SSH connection with the destination it was dialled for.
type Client struct {
	*ssh.Client
	Host    string // destination as given to Dial
	Address string // resolved host:port
}

// Dial connects to dest, which is an ~/.ssh/config alias, a host name,
// user@host or user@host:port.
func Dial(dest string, opts Options) (*Client, error) {
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ep := resolveEndpoint(dest, opts, log)

	auth, err := authMethods(ep.identityFile)
	if err != nil {
		return nil, err
	}
	hostKeys, knownHosts, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	address := ep.address()
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", dest, address),
			dialHint(err))
	}

	_ = conn.SetDeadline(time.Now().Add(timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, &ssh.ClientConfig{
		User:            ep.user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return nil, handshakeError(dest, ep, knownHosts, err)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug("connected to %s as %s", address, ep.user)
	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    dest,
		Address: address,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the destination given to Dial.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// endpoint is a destination resolved against Options and ~/.ssh/config.
type endpoint struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

func (e endpoint) address() string {
	return net.JoinHostPort(e.hostname, e.port)
}

// resolveEndpoint applies, lowest first: defaults, ~/.ssh/config, opts, and
// the user@ and :port parts of dest.
func resolveEndpoint(dest string, opts Options, log logger.Logger) endpoint {
	ep := endpoint{port: "22", user: currentUser()}

	alias := dest
	destUser := ""
	if u, rest, ok := strings.Cut(dest, "@"); ok {
		destUser, alias = u, rest
	}
	destPort := ""
	if h, p, err := net.SplitHostPort(alias); err == nil {
		if _, err := strconv.Atoi(p); err == nil {
			alias, destPort = h, p
		}
	}
	ep.hostname = alias

	path := opts.ConfigFile
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}
	if cfg, matchLine := loadSSHConfig(path); cfg != nil {
		found := false
		lookup := func(key string, dst *string) {
			if v, _ := cfg.Get(alias, key); v != "" {
				*dst = v
				found = true
			}
		}
		lookup("HostName", &ep.hostname)
		lookup("Port", &ep.port)
		lookup("User", &ep.user)
		lookup("IdentityFile", &ep.identityFile)
		ep.identityFile = expandPath(ep.identityFile)

		if !found && matchLine > 0 {
			log.Warn("no entry for '%s' in %s before the Match block at line %d; later entries are ignored",
				alias, path, matchLine)
		}
	}

	if opts.User != "" {
		ep.user = opts.User
	}
	if opts.IdentityFile != "" {
		ep.identityFile = expandPath(opts.IdentityFile)
	}
	if destUser != "" {
		ep.user = destUser
	}
	if destPort != "" {
		ep.port = destPort
	}
	return ep
}

// loadSSHConfig parses the file up to its first Match block, which
// ssh_config can't read, and returns that block's line (0 if none).
// A missing or unreadable file yields nil.
func loadSSHConfig(path string) (*ssh_config.Config, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}
	body, matchLine := beforeMatch(string(data))
	cfg, err := ssh_config.Decode(strings.NewReader(body))
	if err != nil {
		return nil, matchLine
	}
	return cfg, matchLine
}

func beforeMatch(text string) (string, int) {
	offset := 0
	for i, line := range strings.SplitAfter(text, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 && strings.EqualFold(fields[0], "match") {
			return text[:offset], i + 1
		}
		offset += len(line)
	}
	return text, 0
}

// authMethods offers the explicit identity file, then the agent, then the
// default key files. An explicit key that can't be used is an error; default
// keys that can't be used are skipped.
func authMethods(identityFile string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if identityFile != "" {
		signer, err := loadKey(identityFile)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Can't use SSH key %s", identityFile),
				"Passphrase-protected keys must be loaded into the agent: ssh-add "+identityFile)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if a := agentAuth(); a != nil {
		methods = append(methods, a)
	}

	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		path := filepath.Join(homeDir(), ".ssh", name)
		if path == identityFile {
			continue
		}
		if signer, err := loadKey(path); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New(errors.ErrSSH,
			"No SSH keys available",
			"Load a key into the agent (ssh-add) or set ssh.identity_file.")
	}
	return methods, nil
}

func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}

// agentAuth returns the SSH agent's keys, or nil when there is no agent or
// it holds no keys.
func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	client := agent.NewClient(conn)
	if signers, err := client.Signers(); err != nil || len(signers) == 0 {
		conn.Close()
		return nil
	}
	return ssh.PublicKeysCallback(client.Signers)
}

// hostKeyCallback returns the verifier for opts and the known_hosts path it
// reads ("" when verification is off).
func hostKeyCallback(opts Options) (ssh.HostKeyCallback, string, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), "", nil //nolint:gosec // host key checking explicitly disabled
	}
	path := opts.KnownHostsFile
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	path = expandPath(path)

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, "", errors.WrapWithCode(err, errors.ErrSSH,
			"Can't read known hosts file "+path,
			"Connect once with ssh to record the host key, or set ssh.strict_host_key_checking: false.")
	}
	return cb, path, nil
}

func handshakeError(dest string, ep endpoint, knownHosts string, err error) error {
	var keyErr *knownhosts.KeyError
	if stderrors.As(err, &keyErr) {
		if len(keyErr.Want) > 0 {
			return errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Host key for '%s' doesn't match %s", dest, knownHosts),
				fmt.Sprintf("If the host was rebuilt, remove the old key: ssh-keygen -R %s -f %s", ep.hostname, knownHosts))
		}
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Host key for '%s' is not in %s", dest, knownHosts),
			"Connect once with ssh to accept it, or use --insecure-host-key.")
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH login to '%s' as %s was rejected", dest, ep.user),
			"Check the key is in the host's authorized_keys: ssh -v "+dest)
	}
	return errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("SSH handshake with '%s' failed", dest),
		"Try connecting manually: ssh -v "+dest)
}

func dialHint(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Nothing is listening on that port. Is sshd running?"
	case strings.Contains(msg, "no such host"):
		return "The host name doesn't resolve. Check --ssh or ~/.ssh/config."
	case strings.Contains(msg, "timeout"):
		return "Connection timed out. The host may be down or firewalled."
	}
	return "Check the host is reachable from here."
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
