// Package ssh implements remote.Executor over SSH and SFTP.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	xe "github.com/opst/relmon/pkg/errors"
	"github.com/opst/relmon/pkg/remote"
	"github.com/opst/relmon/pkg/utils/retry"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config is how to connect to the submission host.
type Config struct {
	Host     string
	Port     int
	Username string

	// Password authenticates by password and keyboard-interactive.
	Password string

	// PrivateKeyFile authenticates by public key, when not empty.
	PrivateKeyFile string

	// KnownHostsFile verifies host keys, when not empty.
	// Otherwise any host key is accepted.
	KnownHostsFile string

	// PoolSize is the max number of idle connections kept.
	PoolSize int

	DialTimeout time.Duration
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type Pool struct {
	addr   string
	config *ssh.ClientConfig
	size   int

	logger  *log.Logger
	backoff func() retry.Backoff
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)

	mu   sync.Mutex
	idle []*ssh.Client
}

var _ remote.Executor = &Pool{}

type Option func(*Pool) *Pool

func WithLogger(logger *log.Logger) Option {
	return func(p *Pool) *Pool {
		p.logger = logger
		return p
	}
}

// WithBackoff sets backoff between dial attempts.
//
// The factory is called once per dial.
func WithBackoff(b func() retry.Backoff) Option {
	return func(p *Pool) *Pool {
		p.backoff = b
		return p
	}
}

// New prepares a Pool. It does not connect until the first use.
func New(conf Config, options ...Option) (*Pool, error) {
	if conf.Host == "" {
		return nil, errors.New("ssh: host is required")
	}
	if conf.Username == "" {
		return nil, errors.New("ssh: username is required")
	}

	auth := []ssh.AuthMethod{}
	if conf.PrivateKeyFile != "" {
		pem, err := os.ReadFile(conf.PrivateKeyFile)
		if err != nil {
			return nil, xe.WrapWithNote("private key", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, xe.WrapWithNote("private key", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if conf.Password != "" {
		password := conf.Password
		auth = append(
			auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: password or private key is required")
	}

	discard := log.New("ssh")
	discard.SetOutput(io.Discard)

	hostKey := ssh.InsecureIgnoreHostKey()
	if conf.KnownHostsFile != "" {
		cb, err := knownhosts.New(conf.KnownHostsFile)
		if err != nil {
			return nil, xe.WrapWithNote("known hosts", err)
		}
		hostKey = cb
	}

	timeout := conf.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	size := conf.PoolSize
	if size <= 0 {
		size = 1
	}

	dialer := &net.Dialer{Timeout: timeout}
	p := &Pool{
		addr: conf.addr(),
		config: &ssh.ClientConfig{
			User:            conf.Username,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		},
		size:   size,
		logger: discard,
		backoff: func() retry.Backoff {
			return retry.Limit(retry.ExponentialBackoff(time.Second, 2, 30*time.Second), 4)
		},
		dial: dialer.DialContext,
	}
	for _, o := range options {
		p = o(p)
	}
	if conf.KnownHostsFile == "" {
		p.logger.Warnf("host key of %s will not be verified", p.addr)
	}
	return p, nil
}

func (p *Pool) connect(ctx context.Context) (*ssh.Client, error) {
	return retry.Blocking(ctx, p.backoff(), func() (*ssh.Client, error) {
		conn, err := p.dial(ctx, "tcp", p.addr)
		if err != nil {
			p.logger.Warnf("dial %s: %s", p.addr, err)
			return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		c, chans, reqs, err := p.handshake(ctx, conn)
		if err != nil {
			conn.Close()
			p.logger.Warnf("handshake with %s: %s", p.addr, err)
			if cerr := ctx.Err(); cerr != nil {
				return nil, errors.Join(cerr, err)
			}
			return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		p.logger.Infof("connected to %s", p.addr)
		return ssh.NewClient(c, chans, reqs), nil
	})
}

// handshake runs the SSH handshake on conn.
//
// It is bounded by the dial timeout and ctx, whichever comes first.
func (p *Pool) handshake(ctx context.Context, conn net.Conn) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	deadline := time.Now().Add(p.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		// a past deadline unblocks reads and writes in progress.
		conn.SetDeadline(time.Unix(1, 0))
	})

	c, chans, reqs, err := ssh.NewClientConn(conn, p.addr, p.config)
	canceled := !stop()
	if err != nil {
		return nil, nil, nil, err
	}
	if canceled {
		c.Close()
		return nil, nil, nil, ctx.Err()
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, nil, nil, err
	}
	return c, chans, reqs, nil
}

func (p *Pool) acquire(ctx context.Context) (*ssh.Client, error) {
	p.mu.Lock()
	if n := len(p.idle); 0 < n {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.connect(ctx)
	if err != nil {
		return nil, xe.WrapWithNote(p.addr, err)
	}
	return c, nil
}

// release returns the client to the pool.
//
// Broken clients and clients over the pool size are closed.
func (p *Pool) release(c *ssh.Client, broken bool) {
	if broken {
		c.Close()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size <= len(p.idle) {
		c.Close()
		return
	}
	p.idle = append(p.idle, c)
}

// use calls f with a pooled client.
//
// When f reports the connection broken, the client is discarded
// and f is tried once more on a new connection.
func (p *Pool) use(ctx context.Context, f func(*ssh.Client) (broken bool, err error)) error {
	var last error
	for range 2 {
		c, err := p.acquire(ctx)
		if err != nil {
			return err
		}
		// closing the client unblocks f when ctx is done.
		stop := context.AfterFunc(ctx, func() { c.Close() })
		broken, err := f(c)
		if !stop() {
			p.release(c, true)
			return errors.Join(ctx.Err(), err)
		}
		p.release(c, broken)
		if !broken {
			return err
		}
		last = err
		p.logger.Warnf("connection to %s is broken, reconnecting: %s", p.addr, err)
	}
	return last
}

func (p *Pool) Run(ctx context.Context, script remote.Script) (remote.Output, error) {
	out := remote.Output{}
	err := p.use(ctx, func(c *ssh.Client) (bool, error) {
		sess, err := c.NewSession()
		if err != nil {
			return true, err
		}
		defer sess.Close()

		stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
		sess.Stdout = stdout
		sess.Stderr = stderr
		sess.Stdin = bytes.NewBufferString(script.Render())

		p.logger.Debugf("run: %s", script)
		done := make(chan error, 1)
		go func() { done <- sess.Run("/bin/bash -s") }()

		select {
		case <-ctx.Done():
			sess.Signal(ssh.SIGKILL)
			sess.Close()
			<-done
			return false, ctx.Err()
		case err = <-done:
		}

		out = remote.Output{Stdout: stdout.String(), Stderr: stderr.String()}
		var exit *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case err == nil:
		case errors.As(err, &exit):
			out.ExitCode = exit.ExitStatus()
		case errors.As(err, &missing):
			out.ExitCode = -1
		default:
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return remote.Output{}, xe.WrapWithNote(script.String(), err)
	}
	return out, nil
}

func (p *Pool) Upload(ctx context.Context, localPath, remotePath string) error {
	return p.use(ctx, func(c *ssh.Client) (bool, error) {
		sc, err := sftp.NewClient(c)
		if err != nil {
			return true, err
		}
		defer sc.Close()

		src, err := os.Open(localPath)
		if err != nil {
			return false, err
		}
		defer src.Close()

		if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
			return false, err
		}
		dst, err := sc.Create(remotePath)
		if err != nil {
			return false, err
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return false, err
		}
		p.logger.Debugf("uploaded %s -> %s", localPath, remotePath)
		return false, ctx.Err()
	})
}

func (p *Pool) Download(ctx context.Context, remotePath, localPath string) error {
	return p.use(ctx, func(c *ssh.Client) (bool, error) {
		sc, err := sftp.NewClient(c)
		if err != nil {
			return true, err
		}
		defer sc.Close()

		src, err := sc.Open(remotePath)
		if err != nil {
			return false, err
		}
		defer src.Close()

		dst, err := os.Create(localPath)
		if err != nil {
			return false, err
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return false, err
		}
		p.logger.Debugf("downloaded %s -> %s", remotePath, localPath)
		return false, ctx.Err()
	})
}

// Close closes all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	errs := []error{}
	for _, c := range idle {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
