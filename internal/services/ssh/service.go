// Package ssh provides host sessions over SSH.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Service opens sessions to remote hosts.
type Service interface {
	Connect(ctx context.Context, target models.HostTarget) (Session, error)
}

// ConfigReader reads a host's configuration without side effects.
type ConfigReader interface {
	FetchConfig(ctx context.Context) (string, error)
}

// Executor runs a command batch on a host.
type Executor interface {
	Exec(ctx context.Context, commands []string) ([]string, error)
}

// RollbackApplier restores a configuration snapshot on a host.
type RollbackApplier interface {
	ApplyRollback(ctx context.Context, snapshot string) error
}

// Session is one authenticated connection to a host. It is scoped to a single
// top-level request and must be closed by the caller.
type Session interface {
	ConfigReader
	Executor
	RollbackApplier
	Close() error
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	// RunShell starts an interactive shell fed from stdin and returns its
	// combined output once the shell exits.
	RunShell() ([]byte, error)
	SetStdin(r io.Reader)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) RunShell() ([]byte, error) {
	// network CLIs only offer their config mode on a terminal
	modes := ssh.TerminalModes{ssh.ECHO: 0}
	if err := s.session.RequestPty("vt100", 0, 512, modes); err != nil {
		return nil, fmt.Errorf("requesting pty: %w", err)
	}

	var out bytes.Buffer
	s.session.Stdout = &out
	s.session.Stderr = &out
	if err := s.session.Shell(); err != nil {
		return nil, err
	}
	err := s.session.Wait()
	return out.Bytes(), err
}

func (s *defaultSSHSession) SetStdin(r io.Reader) {
	s.session.Stdin = r
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	settings      models.SSHSettings
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger, settings models.SSHSettings) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		settings:      settings,
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, settings models.SSHSettings, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		settings:      settings,
		logger:        logger,
	}
}

// buildConfig forwards the request credentials as password and
// keyboard-interactive answers. The elevation secret is not used by this
// transport.
func (s *Impl) buildConfig(target models.HostTarget) (*ssh.ClientConfig, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // lab fleets rarely ship known_hosts
	if s.settings.KnownHosts != "" {
		cb, err := knownhosts.New(s.settings.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", s.settings.KnownHosts, err)
		}
		hostKeyCallback = cb
	}

	password := target.Auth.Password
	timeout := s.settings.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User: target.Auth.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// Connect authenticates against the host. No command is executed.
func (s *Impl) Connect(ctx context.Context, target models.HostTarget) (Session, error) {
	sshConfig, err := s.buildConfig(target)
	if err != nil {
		return nil, err
	}

	addr := hostAddr(target.Address, s.settings.Port)

	s.logger.Debug().
		Str("host", target.Address).
		Str("addr", addr).
		Str("user", target.Auth.User).
		Msg("connecting")

	// Create client with context timeout
	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		// close a client that finishes dialing after we gave up on it
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("%w: connecting to %s: %w", models.ErrTimeout, addr, ctx.Err())
	case res := <-clientChan:
		if res.err != nil {
			return nil, classifyDialError(addr, res.err)
		}
		return &hostSession{
			client:   res.client,
			address:  target.Address,
			settings: s.settings,
			logger:   s.logger.With().Str("host", target.Address).Logger(),
		}, nil
	}
}

// classifyDialError separates rejected credentials from network failures.
func classifyDialError(addr string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return fmt.Errorf("%w: %s: %v", models.ErrAuthFailed, addr, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrUnreachable, addr, err)
}

// hostAddr appends the default port unless the address carries one.
func hostAddr(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}

type hostSession struct {
	client   SSHClient
	address  string
	settings models.SSHSettings
	logger   zerolog.Logger
}

// run executes one command in its own SSH session and aborts it when ctx ends.
func (h *hostSession) run(ctx context.Context, cmd string, stdin io.Reader) (string, error) {
	return h.within(ctx, stdin, func(s SSHSession) ([]byte, error) {
		return s.CombinedOutput(cmd)
	})
}

// shell streams stdin into an interactive shell in its own SSH session.
func (h *hostSession) shell(ctx context.Context, stdin io.Reader) (string, error) {
	return h.within(ctx, stdin, SSHSession.RunShell)
}

func (h *hostSession) within(ctx context.Context, stdin io.Reader, do func(SSHSession) ([]byte, error)) (string, error) {
	session, err := h.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.SetStdin(stdin)
	}

	type outcome struct {
		output []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := do(session)
		done <- outcome{output, err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", fmt.Errorf("%w: %w", models.ErrTimeout, ctx.Err())
	case res := <-done:
		return strings.TrimRight(string(res.output), "\r\n"), res.err
	}
}

// FetchConfig reads the running configuration verbatim.
func (h *hostSession) FetchConfig(ctx context.Context) (string, error) {
	h.logger.Debug().Str("command", h.settings.ConfigCommand).Msg("fetching configuration")

	output, err := h.run(ctx, h.settings.ConfigCommand, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrConfigUnavailable, err)
	}
	return output, nil
}

// Exec runs the commands in order. On failure it returns the output gathered
// so far, including the failing command's own output, with an *ExecError.
func (h *hostSession) Exec(ctx context.Context, commands []string) ([]string, error) {
	outputs := make([]string, 0, len(commands))

	for i, cmd := range commands {
		h.logger.Debug().Int("index", i).Str("command", cmd).Msg("executing command")

		output, err := h.run(ctx, cmd, nil)
		if output != "" || err == nil {
			outputs = append(outputs, output)
		}
		if err != nil {
			return outputs, &models.ExecError{Index: i, Command: cmd, Err: err}
		}
	}

	return outputs, nil
}

// ApplyRollback restores a snapshot. With an apply command configured the
// snapshot is streamed verbatim on its stdin. Otherwise the cleaned
// configuration is streamed into one shell session, wrapped in the config
// mode command and "end" when one is set.
func (h *hostSession) ApplyRollback(ctx context.Context, snapshot string) error {
	if h.settings.ApplyCommand != "" {
		h.logger.Debug().Str("command", h.settings.ApplyCommand).Msg("applying snapshot")
		if _, err := h.run(ctx, h.settings.ApplyCommand, strings.NewReader(snapshot)); err != nil {
			return fmt.Errorf("%w: %w", models.ErrRollback, err)
		}
		return nil
	}

	lines := configLines(snapshot)
	h.logger.Debug().
		Str("config_mode", h.settings.ConfigMode).
		Int("lines", len(lines)).
		Msg("streaming snapshot")

	output, err := h.shell(ctx, strings.NewReader(configScript(h.settings.ConfigMode, lines)))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrRollback, err)
	}
	if rejected := rejectedLine(output); rejected != "" {
		return fmt.Errorf("%w: device rejected configuration: %s", models.ErrRollback, rejected)
	}
	return nil
}

// Lines "show running-config" prints around the configuration itself.
var bannerPrefixes = []string{
	"Building configuration",
	"Current configuration :",
	"Last configuration change",
	"NVRAM config last updated",
	"version ",
}

// configLines strips blank lines, "!" comments, the banner and the trailing
// "end" from a snapshot. Indentation is kept.
func configLines(snapshot string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(snapshot, "\r\n", "\n"), "\n") {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") || trimmed == "end" {
			continue
		}
		if hasAnyPrefix(trimmed, bannerPrefixes) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// configScript is what the shell receives on stdin.
func configScript(mode string, lines []string) string {
	var b strings.Builder
	if mode != "" {
		b.WriteString(mode + "\n")
	}
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	if mode != "" {
		b.WriteString("end\n")
	}
	b.WriteString("exit\n")
	return b.String()
}

var rejectionMarkers = []string{
	"% Invalid input",
	"% Incomplete command",
	"% Ambiguous command",
	"% Unknown command",
}

// rejectedLine returns the first CLI error line in a shell transcript.
func rejectedLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if hasAnyPrefix(line, rejectionMarkers) {
			return line
		}
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Close releases the connection.
func (h *hostSession) Close() error {
	return h.client.Close()
}
