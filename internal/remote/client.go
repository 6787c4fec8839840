// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package remote runs shell commands on, and copies files to, the transfer host.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ga-tools/poliops-transfer/internal/config"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultPort        = "22"
	defaultDialTimeout = 30 * time.Second
)

var ErrNotConnected = errors.New("remote client is not connected")

// Result is the outcome of a command. A non-zero ExitCode is not an error.
type Result struct {
	Stdout   []string
	ExitCode int
}

// Shell runs commands on a remote host.
type Shell interface {
	Run(ctx context.Context, command string) (*Result, error)
	Stream(ctx context.Context, command string, fn func(io.Reader) error) (int, error)
}

// Copier puts local files on a remote host.
type Copier interface {
	CopyFile(ctx context.Context, localPath, remotePath string) error
}

// Options describes how to reach the remote host.
type Options struct {
	Host       string
	User       string
	KeyPath    string
	KnownHosts string
	Timeout    time.Duration
}

// OptionsFrom resolves the key and known_hosts paths for a [remote] section.
func OptionsFrom(cfg config.Remote) (Options, error) {
	keyPath, err := KeyPath(cfg.KeyName)
	if err != nil {
		return Options{}, err
	}
	home, err := homedir.Dir()
	if err != nil {
		return Options{}, fmt.Errorf("failed to find home directory: %w", err)
	}

	return Options{
		Host:       cfg.Host,
		User:       cfg.User,
		KeyPath:    keyPath,
		KnownHosts: filepath.Join(home, ".ssh", "known_hosts"),
		Timeout:    defaultDialTimeout,
	}, nil
}

// KeyPath expands a leading ~ and resolves bare key names under ~/.ssh.
func KeyPath(keyName string) (string, error) {
	if keyName == "" {
		return "", fmt.Errorf("key name is required")
	}
	expanded, err := homedir.Expand(keyName)
	if err != nil {
		return "", fmt.Errorf("failed to expand key path: %w", err)
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", expanded), nil
}

// Client is an SSH connection to the transfer host.
type Client struct {
	conn   *ssh.Client
	logger *zap.Logger
}

// Dial connects and authenticates with the private key in opts.KeyPath.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	key, err := os.ReadFile(opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", opts.KeyPath, err)
	}

	hostKeyCallback, err := hostKeyCallback(opts.KnownHosts, logger)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	addr := opts.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	clientConfig := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("failed to open ssh connection to %s: %w", addr, err)
	}

	logger.Debug("Connected to remote host",
		zap.String("addr", addr),
		zap.String("user", opts.User))

	return &Client{conn: ssh.NewClient(c, chans, reqs), logger: logger}, nil
}

func hostKeyCallback(knownHostsPath string, logger *zap.Logger) (ssh.HostKeyCallback, error) {
	if knownHostsPath != "" {
		if _, err := os.Stat(knownHostsPath); err == nil {
			cb, err := knownhosts.New(knownHostsPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", knownHostsPath, err)
			}
			return cb, nil
		}
	}

	logger.Warn("No known_hosts file, host key will not be verified",
		zap.String("path", knownHostsPath))
	return ssh.InsecureIgnoreHostKey(), nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Run executes command and collects its stdout as lines.
func (c *Client) Run(ctx context.Context, command string) (*Result, error) {
	var stdout bytes.Buffer
	code, err := c.Stream(ctx, command, func(r io.Reader) error {
		_, err := io.Copy(&stdout, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Result{Stdout: splitLines(stdout.String()), ExitCode: code}, nil
}

// Stream executes command and hands its stdout to fn. The remote exit code is
// returned once fn is done and the command has finished.
func (c *Client) Stream(ctx context.Context, command string, fn func(io.Reader) error) (int, error) {
	if c.conn == nil {
		return -1, ErrNotConnected
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to get stdout: %w", err)
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	c.logger.Debug("Running remote command", zap.String("command", command))
	if err := session.Start(command); err != nil {
		return -1, fmt.Errorf("failed to start %q: %w", command, err)
	}

	if err := fn(stdout); err != nil {
		return -1, fmt.Errorf("failed to read output of %q: %w", command, err)
	}
	// Drain whatever fn left so the command can finish.
	_, _ = io.Copy(io.Discard, stdout)

	err = session.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		if stderr.Len() > 0 {
			c.logger.Debug("Remote command stderr",
				zap.String("command", command),
				zap.String("stderr", strings.TrimSpace(stderr.String())))
		}
		return exitErr.ExitStatus(), nil
	default:
		return -1, fmt.Errorf("failed to run %q: %w", command, err)
	}
}

// CopyFile uploads localPath to remotePath over SFTP. A relative remotePath is
// relative to the login directory.
func (c *Client) CopyFile(ctx context.Context, localPath, remotePath string) (err error) {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := sftp.NewClient(c.conn)
	if err != nil {
		return fmt.Errorf("failed to start sftp: %w", err)
	}
	defer sc.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote %s: %w", remotePath, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close remote %s: %w", remotePath, cerr)
		}
	}()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", localPath, remotePath, err)
	}

	c.logger.Debug("Copied file to remote host",
		zap.String("local", localPath),
		zap.String("remote", remotePath),
		zap.Int64("bytes", n))
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
