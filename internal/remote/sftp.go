package remote

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/reforgerwatch/reforgerwatch/internal/config"
)

// DirEntry is a single entry from a remote directory listing
type DirEntry struct {
	Name  string
	IsDir bool
}

// FileSource lists and fetches files on the game host
type FileSource interface {
	List(path string) ([]DirEntry, error)
	Get(path string) ([]byte, error)
	Close() error
}

// sftpSource is a FileSource over an SSH/SFTP connection
type sftpSource struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// dialSFTP opens an SSH connection to the game host and starts an SFTP
// session on it
func dialSFTP(cfg config.RemoteConfig) (FileSource, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	sshConn, err := ssh.Dial("tcp", cfg.Address(), &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Address(), err)
	}

	sftpConn, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("starting sftp session: %w", err)
	}

	return &sftpSource{ssh: sshConn, sftp: sftpConn}, nil
}

func (s *sftpSource) List(path string) ([]DirEntry, error) {
	infos, err := s.sftp.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, DirEntry{Name: info.Name(), IsDir: info.IsDir()})
	}
	return entries, nil
}

func (s *sftpSource) Get(path string) ([]byte, error) {
	f, err := s.sftp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (s *sftpSource) Close() error {
	s.sftp.Close()
	return s.ssh.Close()
}

// Manager owns the single reusable remote connection. The handle is dialed
// lazily on Acquire, reused until an error, and torn down by CloseOnError so
// the next Acquire reconnects fresh.
type Manager struct {
	cfg  config.RemoteConfig
	dial func(config.RemoteConfig) (FileSource, error)

	mu  sync.Mutex
	src FileSource
}

// NewManager creates a connection manager for the configured SFTP endpoint
func NewManager(cfg config.RemoteConfig) *Manager {
	return &Manager{cfg: cfg, dial: dialSFTP}
}

// Acquire returns the existing connection, dialing only if none is open
func (m *Manager) Acquire() (FileSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		return m.src, nil
	}
	src, err := m.dial(m.cfg)
	if err != nil {
		return nil, err
	}
	m.src = src
	return src, nil
}

// CloseOnError tears down the handle after an I/O error. Closing an
// already-closed handle is a no-op.
func (m *Manager) CloseOnError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src == nil {
		return
	}
	m.src.Close()
	m.src = nil
}

// Close releases the connection on shutdown
func (m *Manager) Close() {
	m.CloseOnError()
}
