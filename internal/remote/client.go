package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	xssh "golang.org/x/crypto/ssh"
)

// Client runs commands on one host over SSH.
type Client struct {
	Addr       string
	User       string
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
}

// Options describes a host in config terms.
type Options struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	KnownHosts string
	Timeout    time.Duration
	Retries    int
}

// NewClient loads the key and the known_hosts file for opts. Host keys are
// always verified.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("remote: host required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.User == "" {
		opts.User = "root"
	}
	signer, err := readSigner(opts.KeyPath)
	if err != nil {
		return nil, err
	}
	if opts.KnownHosts == "" {
		return nil, errors.New("remote: known_hosts path required")
	}
	cb, err := hostKeyCallback(opts.KnownHosts)
	if err != nil {
		return nil, err
	}
	return &Client{
		Addr:       net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		User:       opts.User,
		Signer:     signer,
		KnownHosts: cb,
		Timeout:    opts.Timeout,
		Retries:    opts.Retries,
	}, nil
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	if c.Signer == nil {
		return nil, errors.New("remote: signer required")
	}
	if c.KnownHosts == nil {
		return nil, errors.New("remote: host key callback required")
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(c.Signer)},
		HostKeyCallback: c.KnownHosts,
		Timeout:         c.Timeout,
	}, nil
}

// Dial connects to the host, giving up when ctx is done. The caller closes
// the returned client.
func (c *Client) Dial(ctx context.Context) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		cli, err := xssh.Dial("tcp", c.Addr, cfg)
		ch <- res{cli: cli, err: err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.cli != nil {
				_ = r.cli.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.cli, r.err
	}
}

// RunCommand executes command with retries and linear backoff. Only
// connection failures are retried; a command that ran and exited non-zero
// is returned as is.
func (c *Client) RunCommand(ctx context.Context, command string) (string, string, error) {
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		cli, err := c.Dial(ctx)
		if err == nil {
			stdout, stderr, runErr := run(ctx, cli, command)
			_ = cli.Close()
			return stdout, stderr, runErr
		}
		lastErr = fmt.Errorf("dial %s: %w", c.Addr, err)
		log.Debug().Err(err).Str("addr", c.Addr).Int("attempt", attempt+1).Msg("SSH dial failed")

		if attempt < retries {
			select {
			case <-ctx.Done():
				return "", "", ctx.Err()
			case <-time.After(backoff * time.Duration(attempt+1)):
			}
		}
	}
	return "", "", lastErr
}

func run(ctx context.Context, cli *xssh.Client, command string) (string, string, error) {
	session, err := cli.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()
	select {
	case <-ctx.Done():
		_ = session.Signal(xssh.SIGKILL)
		return stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("run command: %w", err)
		}
		return stdout.String(), stderr.String(), nil
	}
}
