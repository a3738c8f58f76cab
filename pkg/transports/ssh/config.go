// Package ssh implements the engine's session provider over SSH, with SFTP
// file transfer.
package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/opsline/opsline/pkg/inventory"
)

// Config holds the connection parameters for one host, built from its
// merged inventory data.
type Config struct {
	Host string
	Port int
	User string

	// Authentication material. Precedence when building auth methods:
	// explicit password, then key (path, with optional passphrase), then
	// SSH agent, then default key locations.
	Password      string
	KeyPath       string
	KeyPassphrase string

	// Host key verification. When StrictHostKeyChecking is set the
	// known_hosts file at KnownHostsPath is consulted; otherwise any host
	// key is accepted.
	StrictHostKeyChecking bool
	KnownHostsPath        string

	ConnectTimeout time.Duration
}

// Host data keys consumed by the transport.
const (
	DataHostname    = "ssh_hostname"
	DataPort        = "ssh_port"
	DataUser        = "ssh_user"
	DataPassword    = "ssh_password"
	DataKey         = "ssh_key"
	DataKeyPassword = "ssh_key_password"
)

// ConfigForHost builds the SSH config from a host's merged data. The host
// name is the address unless ssh_hostname overrides it.
func ConfigForHost(host *inventory.Host, connectTimeout time.Duration) *Config {
	return &Config{
		Host:           host.DataString(DataHostname, host.Name),
		Port:           host.DataInt(DataPort, 22),
		User:           host.DataString(DataUser, ""),
		Password:       host.DataString(DataPassword, ""),
		KeyPath:        host.DataString(DataKey, ""),
		KeyPassphrase:  host.DataString(DataKeyPassword, ""),
		ConnectTimeout: connectTimeout,
	}
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the minimum viable configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

// BuildClientConfig assembles the ssh.ClientConfig with auth methods in
// precedence order.
func (c *Config) BuildClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if c.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.Password))
		// Many servers present password prompts via keyboard-interactive.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))
	}

	if c.KeyPath != "" {
		signer, err := loadKey(c.KeyPath, c.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if c.Password == "" && c.KeyPath == "" {
		for _, keyPath := range defaultKeyPaths() {
			signer, err := loadKey(keyPath, "")
			if err != nil {
				continue
			}
			authMethods = append(authMethods, ssh.PublicKeys(signer))
			break
		}
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available for %s", c.Host)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.StrictHostKeyChecking {
		path := c.KnownHostsPath
		if path == "" {
			path = filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
		}
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

func loadKey(path, passphrase string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(keyBytes)
}

func defaultKeyPaths() []string {
	home := os.Getenv("HOME")
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}
