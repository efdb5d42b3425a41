// Package preflight checks that every node of a document accepts the
// document's access key over SSH before a bootstrap run registers it.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/goprovision/clients/sshclient"
	"github.com/nomis52/goprovision/document"
)

const (
	defaultConcurrency = 8
	defaultSSHPort     = 22

	loginCommand = "true"
	sudoCommand  = "sudo -n true"
)

// ErrPreflightFailed is returned when at least one node fails its checks.
var ErrPreflightFailed = errors.New("preflight failed")

// NodeResult is the outcome of checking one node.
type NodeResult struct {
	IP        string `json:"ip"`
	Addr      string `json:"addr"`
	User      string `json:"user"`
	Reachable bool   `json:"reachable"`
	// Sudo is only checked when the key grants passwordless sudo.
	SudoChecked bool          `json:"sudo_checked"`
	Sudo        bool          `json:"sudo"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// OK reports whether the node passed every check it was given.
func (r NodeResult) OK() bool {
	return r.Error == ""
}

// Report holds one result per node, in document order.
type Report struct {
	Nodes []NodeResult `json:"nodes"`
}

// Failed returns the nodes that did not pass.
func (r Report) Failed() []NodeResult {
	var failed []NodeResult
	for _, n := range r.Nodes {
		if !n.OK() {
			failed = append(failed, n)
		}
	}
	return failed
}

// Checker runs the SSH checks.
type Checker struct {
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithConcurrency bounds the nodes checked at once.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTimeout bounds the connection to each node.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		timeout:     sshclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "preflight")
	return c
}

// Check logs in to every node of doc with its access key. The returned
// error wraps ErrPreflightFailed when any node fails; the report is complete
// either way.
func (c *Checker) Check(ctx context.Context, doc *document.Document) (Report, error) {
	if doc == nil || doc.Key == nil {
		return Report{}, errors.New("preflight needs an access key")
	}
	signer, err := document.ParsePrivateKey(doc.Key)
	if err != nil {
		return Report{}, err
	}
	port := doc.Key.SSHPort
	if port == 0 {
		port = defaultSSHPort
	}

	report := Report{Nodes: make([]NodeResult, len(doc.Nodes))}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, n := range doc.Nodes {
		cfg := sshclient.Config{
			User:    doc.NodeSSHUser(n),
			Signer:  signer,
			Timeout: c.timeout,
		}
		addr := net.JoinHostPort(n.IP, fmt.Sprint(port))
		g.Go(func() error {
			report.Nodes[i] = c.checkNode(ctx, n.IP, addr, cfg, doc.Key.PasswordlessSudoAccess)
			return nil
		})
	}
	_ = g.Wait()

	failed := len(report.Failed())
	if failed > 0 {
		return report, fmt.Errorf("%w: %d of %d nodes", ErrPreflightFailed, failed, len(report.Nodes))
	}
	c.logger.Info("all nodes passed preflight", "nodes", len(report.Nodes))
	return report, nil
}

func (c *Checker) checkNode(ctx context.Context, ip, addr string, cfg sshclient.Config, sudo bool) (res NodeResult) {
	start := time.Now()
	res = NodeResult{IP: ip, Addr: addr, User: cfg.User}
	defer func() {
		res.Duration = time.Since(start)
	}()

	client, err := sshclient.Dial(ctx, addr, cfg)
	if err != nil {
		res.Error = err.Error()
		c.logger.Warn("node unreachable", "ip", ip, "addr", addr, "error", err)
		return res
	}
	defer client.Close()

	if _, _, err := client.Run(loginCommand); err != nil {
		res.Error = err.Error()
		c.logger.Warn("login check failed", "ip", ip, "error", err)
		return res
	}
	res.Reachable = true

	if sudo {
		res.SudoChecked = true
		if _, _, err := client.Run(sudoCommand); err != nil {
			res.Error = err.Error()
			c.logger.Warn("passwordless sudo check failed", "ip", ip, "user", cfg.User, "error", err)
			return res
		}
		res.Sudo = true
	}

	c.logger.Debug("node passed preflight", "ip", ip, "user", cfg.User)
	return res
}
