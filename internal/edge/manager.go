// Package edge runs the pipeline service under test and talks to its
// management API.
package edge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"

	"skilltest/internal/netprobe"
	"skilltest/pkg/logging"
)

// ErrBinaryNotFound is returned when an executable cannot be located.
var ErrBinaryNotFound = errors.New("executable not found")

// Defaults for the service process.
const (
	DefaultBinary        = "expanso-edge"
	DefaultLogLevel      = "warn"
	DefaultShutdownGrace = 5 * time.Second

	dataDirPattern = "expanso-edge-data-"
	logFileName    = "edge.log"
)

// Config configures the service process.
type Config struct {
	// Binary is a name looked up in PATH or a path to the executable.
	Binary   string
	LogLevel string
	// APIPort is the management API port; zero allocates a free one.
	APIPort   int
	ExtraArgs []string
	// Env holds extra KEY=VALUE entries added to the inherited environment.
	Env           []string
	ShutdownGrace time.Duration
}

// Handle describes a running service instance.
type Handle struct {
	APIURL  string
	APIPort int
	DataDir string
	LogPath string
	PID     int
}

// Manager owns the service child process. A Manager starts at most one
// process; Stop is safe to call any number of times.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	logFile *os.File
	handle  *Handle
	stopped bool

	wg      conc.WaitGroup
	exited  chan struct{}
	exitErr error
}

// NewManager returns a manager for cfg, filling in defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	return &Manager{cfg: cfg, exited: make(chan struct{})}
}

// LookupBinary resolves name to an executable path.
func LookupBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	return path, nil
}

// Start launches the service with an isolated data directory and its
// output redirected to a log file inside it.
func (m *Manager) Start(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return nil, fmt.Errorf("service already started")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binary, err := LookupBinary(m.cfg.Binary)
	if err != nil {
		return nil, err
	}

	port := m.cfg.APIPort
	if port == 0 {
		if port, err = netprobe.FreePort(); err != nil {
			return nil, err
		}
	}

	dataDir, err := os.MkdirTemp("", dataDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logPath := filepath.Join(dataDir, logFileName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	addr := netprobe.Address(port)
	args := []string{
		"run",
		"--local",
		"--no-watch",
		"--api-listen", addr,
		"--data-dir", dataDir,
		"--log-level", m.cfg.LogLevel,
	}
	args = append(args, m.cfg.ExtraArgs...)

	cmd := exec.Command(binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), m.cfg.Env...)

	logging.Debug("Edge", "Starting %s %v", binary, args)
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", m.cfg.Binary, err)
	}

	m.cmd = cmd
	m.logFile = logFile
	m.wg.Go(func() {
		m.exitErr = cmd.Wait()
		close(m.exited)
	})

	m.handle = &Handle{
		APIURL:  "http://" + addr,
		APIPort: port,
		DataDir: dataDir,
		LogPath: logPath,
		PID:     cmd.Process.Pid,
	}
	logging.Info("Edge", "Started %s (pid %d), API at %s, logs in %s", m.cfg.Binary, m.handle.PID, m.handle.APIURL, logPath)
	return m.handle, nil
}

// Exited is closed when the process exits for any reason.
func (m *Manager) Exited() <-chan struct{} {
	return m.exited
}

// ExitErr returns the process exit error once Exited is closed.
func (m *Manager) ExitErr() error {
	select {
	case <-m.exited:
		return m.exitErr
	default:
		return nil
	}
}

// Stop terminates the process: SIGTERM first, then a kill once the grace
// period runs out. No process survives a call to Stop. The data directory
// is kept so its log can be inspected afterwards.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil || m.stopped {
		return nil
	}
	m.stopped = true

	var result *multierror.Error
	select {
	case <-m.exited:
		logging.Debug("Edge", "Process %d already exited: %v", m.handle.PID, m.exitErr)
	default:
		if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logging.Warn("Edge", "SIGTERM failed for pid %d, killing: %v", m.handle.PID, err)
		}
		select {
		case <-m.exited:
			logging.Debug("Edge", "Process %d exited after SIGTERM", m.handle.PID)
		case <-time.After(m.cfg.ShutdownGrace):
			logging.Warn("Edge", "Process %d did not exit within %s, killing", m.handle.PID, m.cfg.ShutdownGrace)
			if err := m.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				result = multierror.Append(result, fmt.Errorf("failed to kill pid %d: %w", m.handle.PID, err))
			}
		}
	}
	m.wg.Wait()

	if err := m.logFile.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close log file: %w", err))
	}
	return result.ErrorOrNil()
}

// LogTail returns up to max bytes from the end of the service log.
func (h *Handle) LogTail(max int64) string {
	f, err := os.Open(h.LogPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	if off := info.Size() - max; off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}
