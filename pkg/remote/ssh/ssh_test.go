package ssh_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/opst/relmon/pkg/remote"
	rssh "github.com/opst/relmon/pkg/remote/ssh"
	"github.com/opst/relmon/pkg/utils/retry"
	"github.com/opst/relmon/pkg/utils/try"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// server is an SSH server which echoes the script back to stdout,
// writes "warning" to stderr and exits with 3. It also serves sftp on the local filesystem.
type server struct {
	addr    string
	hostKey ssh.PublicKey
	execs   chan string
}

func startServer(t *testing.T) *server {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer := try.To(ssh.NewSignerFromKey(key)).OrFatal(t)

	conf := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "relmon" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	conf.AddHostKey(signer)

	ln := try.To(net.Listen("tcp", "127.0.0.1:0")).OrFatal(t)
	t.Cleanup(func() { ln.Close() })

	s := &server{addr: ln.Addr().String(), hostKey: signer.PublicKey(), execs: make(chan string, 16)}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(nc, conf)
		}
	}()
	return s
}

func (s *server) serve(nc net.Conn, conf *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, conf)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, creqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range creqs {
				switch req.Type {
				case "exec":
					payload := struct{ Command string }{}
					ssh.Unmarshal(req.Payload, &payload)
					s.execs <- payload.Command
					req.Reply(true, nil)

					script, _ := io.ReadAll(ch)
					ch.Write(script)
					ch.Stderr().Write([]byte("warning\n"))
					ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{3}))
					return
				case "subsystem":
					req.Reply(true, nil)
					srv, err := sftp.NewServer(ch)
					if err != nil {
						return
					}
					srv.Serve()
					return
				default:
					req.Reply(false, nil)
				}
			}
		}()
	}
}

func (s *server) config(t *testing.T) rssh.Config {
	t.Helper()
	host, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		t.Fatal(err)
	}

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{s.addr}, s.hostKey)
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	return rssh.Config{
		Host:           host,
		Port:           try.To(strconv.Atoi(port)).OrFatal(t),
		Username:       "relmon",
		Password:       "secret",
		KnownHostsFile: knownHosts,
		PoolSize:       1,
		DialTimeout:    5 * time.Second,
	}
}

func quickBackoff() retry.Backoff {
	return retry.Limit(retry.StaticBackoff(time.Millisecond), 1)
}

func TestPool_Run(t *testing.T) {
	s := startServer(t)
	testee := try.To(rssh.New(s.config(t), rssh.WithBackoff(quickBackoff))).OrFatal(t)
	defer testee.Close()

	ctx := context.Background()
	script := remote.NewScript(remote.Cmd("echo", "hello world"))

	for n := range 2 {
		out, err := testee.Run(ctx, script)
		if err != nil {
			t.Fatalf("#%d: %v", n, err)
		}
		if out.Stdout != script.Render() {
			t.Errorf("#%d: stdout = %q", n, out.Stdout)
		}
		if out.Stderr != "warning\n" {
			t.Errorf("#%d: stderr = %q", n, out.Stderr)
		}
		if out.ExitCode != 3 {
			t.Errorf("#%d: exit code = %d", n, out.ExitCode)
		}
		if cmd := <-s.execs; cmd != "/bin/bash -s" {
			t.Errorf("#%d: exec = %q", n, cmd)
		}
		if n == 0 {
			if err := testee.Close(); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestPool_Transfer(t *testing.T) {
	s := startServer(t)
	testee := try.To(rssh.New(s.config(t), rssh.WithBackoff(quickBackoff))).OrFatal(t)
	defer testee.Close()

	ctx := context.Background()
	root := t.TempDir()
	local := filepath.Join(root, "local.txt")
	if err := os.WriteFile(local, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	remotePath := filepath.Join(root, "remote", "1700000000", "RELMON_1700000000.json")
	if err := testee.Upload(ctx, local, remotePath); err != nil {
		t.Fatal(err)
	}
	if got := try.To(os.ReadFile(remotePath)).OrFatal(t); string(got) != "payload" {
		t.Errorf("uploaded: %q", got)
	}

	back := filepath.Join(root, "back.txt")
	if err := testee.Download(ctx, remotePath, back); err != nil {
		t.Fatal(err)
	}
	if got := try.To(os.ReadFile(back)).OrFatal(t); string(got) != "payload" {
		t.Errorf("downloaded: %q", got)
	}

	if err := testee.Download(ctx, filepath.Join(root, "missing"), filepath.Join(root, "x")); err == nil {
		t.Error("downloading missing file should fail")
	}
}

func TestPool_AuthFailure(t *testing.T) {
	s := startServer(t)
	conf := s.config(t)
	conf.Password = "wrong"

	testee := try.To(rssh.New(conf, rssh.WithBackoff(quickBackoff))).OrFatal(t)
	defer testee.Close()

	_, err := testee.Run(context.Background(), remote.NewScript(remote.Cmd("true")))
	if !errors.Is(err, retry.ErrGiveUp) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew(t *testing.T) {
	for name, conf := range map[string]rssh.Config{
		"no host":         {Username: "u", Password: "p"},
		"no user":         {Host: "h", Password: "p"},
		"no credential":   {Host: "h", Username: "u"},
		"missing key":     {Host: "h", Username: "u", PrivateKeyFile: "/no/such/key"},
		"missing hostsdb": {Host: "h", Username: "u", Password: "p", KnownHostsFile: "/no/such/known_hosts"},
	} {
		if _, err := rssh.New(conf); err == nil {
			t.Errorf("%s: it should be rejected", name)
		}
	}
}

func TestPool_SilentHost(t *testing.T) {
	// it accepts connections but never speaks SSH.
	ln := try.To(net.Listen("tcp", "127.0.0.1:0")).OrFatal(t)
	defer ln.Close()
	go func() {
		conns := []net.Conn{}
		defer func() {
			for _, nc := range conns {
				nc.Close()
			}
		}()
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, nc)
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conf := rssh.Config{
		Host:     host,
		Port:     try.To(strconv.Atoi(port)).OrFatal(t),
		Username: "relmon",
		Password: "secret",
	}

	for name, c := range map[string]struct {
		dialTimeout time.Duration
		ctxTimeout  time.Duration
	}{
		"handshake is bounded by the dial timeout": {dialTimeout: 200 * time.Millisecond, ctxTimeout: time.Minute},
		"handshake is bounded by the context":      {dialTimeout: time.Minute, ctxTimeout: 200 * time.Millisecond},
	} {
		t.Run(name, func(t *testing.T) {
			conf := conf
			conf.DialTimeout = c.dialTimeout
			testee := try.To(rssh.New(conf, rssh.WithBackoff(quickBackoff))).OrFatal(t)
			defer testee.Close()

			ctx, cancel := context.WithTimeout(context.Background(), c.ctxTimeout)
			defer cancel()

			result := make(chan error, 1)
			go func() {
				_, err := testee.Run(ctx, remote.NewScript(remote.Cmd("true")))
				result <- err
			}()

			select {
			case err := <-result:
				if err == nil {
					t.Error("it should fail")
				}
			case <-time.After(10 * time.Second):
				t.Fatal("Run is blocked")
			}
		})
	}
}
