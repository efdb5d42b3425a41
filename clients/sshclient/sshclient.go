// Package sshclient runs commands on provider nodes over SSH.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds the TCP connect and SSH handshake.
const DefaultTimeout = 10 * time.Second

// Config describes how to log in to a node.
type Config struct {
	User   string
	Signer ssh.Signer
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// HostKeyCallback defaults to accepting any host key. Nodes of a new
	// provider are not in any known_hosts file yet.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHClient manages a persistent SSH connection for running multiple commands.
type SSHClient struct {
	client *ssh.Client
}

// Dial connects to addr (host:port) and authenticates with the signer.
func Dial(ctx context.Context, addr string, cfg Config) (*SSHClient, error) {
	if cfg.Signer == nil {
		return nil, errors.New("no signer provided")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	// The handshake is not context aware; bound it with a deadline instead.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(cfg.Signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, err
	}

	return &SSHClient{client: ssh.NewClient(c, chans, reqs)}, nil
}

// Run executes a command on the remote host using a new session on the existing connection.
func (c *SSHClient) Run(command string) (string, string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Run(command); err != nil {
		return stdoutBuf.String(), stderrBuf.String(), fmt.Errorf("command %q failed: %w", command, err)
	}

	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close closes the connection.
func (c *SSHClient) Close() error {
	return c.client.Close()
}
