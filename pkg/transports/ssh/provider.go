package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/inventory"
)

// Provider opens SSH sessions for the engine. One Provider serves a whole
// run; each Connect call produces an independent session.
type Provider struct {
	// StrictHostKeyChecking and KnownHostsPath apply to every host.
	StrictHostKeyChecking bool
	KnownHostsPath        string
}

// NewProvider creates an SSH session provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Connect dials the host per its merged inventory data and returns a live
// session. Authentication, DNS, transport and handshake failures come back
// as a TransportError.
func (p *Provider) Connect(ctx context.Context, host *inventory.Host) (engine.Session, error) {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	cfg := ConfigForHost(host, timeout)
	cfg.StrictHostKeyChecking = p.StrictHostKeyChecking
	cfg.KnownHostsPath = p.KnownHostsPath
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	clientConfig, err := cfg.BuildClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := cfg.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connChan:
		log.Info().Str("address", address).Msg("SSH connection established")
		return &session{client: client, host: host.Name}, nil
	}
}

// session implements engine.Session over one SSH client connection.
type session struct {
	client *ssh.Client
	host   string
}

// Run executes a command in a fresh SSH channel, capturing output and exit
// status. A nonzero exit is reported in the result; errors are transport
// failures or context expiry.
func (s *session) Run(ctx context.Context, cmd string) (*engine.CommandResult, error) {
	startTime := time.Now()

	sshSession, err := s.client.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer sshSession.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	sshSession.Stdout = &stdoutBuf
	sshSession.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- sshSession.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = sshSession.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = sshSession.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-doneChan:
	}

	result := &engine.CommandResult{
		Command:  cmd,
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(startTime),
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			// Command ran but returned nonzero; not a transport failure.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, &TransportError{Op: "execute", Err: runErr, IsTemporary: true}
	}

	return result, nil
}

// Upload writes content to remotePath via SFTP, creating parent directories
// as needed.
func (s *session) Upload(ctx context.Context, content io.Reader, remotePath string) error {
	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	if _, err := copyWithContext(ctx, remoteFile, content); err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}

	return nil
}

// Close tears down the SSH connection.
func (s *session) Close() error {
	log.Debug().Str("host", s.host).Msg("closing SSH connection")
	return s.client.Close()
}

// copyWithContext copies src to dst, checking for cancellation between
// chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
