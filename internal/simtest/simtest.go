// Package simtest provides simulator stand-ins for tests: a /bin/sh stub
// that honours the simulator command line, and a spy launcher that records
// invocations without spawning processes.
package simtest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/3leaps/lifeshots/pkg/runner"
)

// Shell is the interpreter used to run stub scripts.
const Shell = "/bin/sh"

// LogEnv names the env var the stub appends "<pattern> <output>" lines to.
const LogEnv = "LIFESHOTS_STUB_LOG"

// PIDEnv names the env var of a file where a hanging stub writes the pid
// of the background process it waits on.
const PIDEnv = "LIFESHOTS_STUB_PIDFILE"

// stubScript behaves like the simulator: it writes a fake PNG to the
// --screenshot path and exits 0. Patterns whose file name contains "hang"
// sleep past any reasonable budget; "fail" exits 3 with a message on stderr.
const stubScript = `#!/bin/sh
out=""
pattern=""
while [ $# -gt 0 ]; do
  case "$1" in
    --screenshot) out="$2"; shift ;;
    --pattern) pattern="$2"; shift ;;
  esac
  shift
done
if [ -n "$` + LogEnv + `" ]; then
  echo "$pattern $out" >> "$` + LogEnv + `"
fi
case "$(basename "$pattern")" in
  *hang*)
    sleep 30 &
    if [ -n "$` + PIDEnv + `" ]; then
      echo $! > "$` + PIDEnv + `"
    fi
    wait ;;
  *fail*) echo "cannot render $pattern" >&2; exit 3 ;;
esac
printf 'PNG' > "$out" || exit 2
`

// RequireShell skips the test when /bin/sh is unavailable.
func RequireShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub simulator requires /bin/sh")
	}
	if _, err := os.Stat(Shell); err != nil {
		t.Skip("stub simulator requires /bin/sh")
	}
}

// WriteStub writes the stub simulator into dir and returns its path.
func WriteStub(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "game_of_life.sh")
	if err := os.WriteFile(path, []byte(stubScript), 0o755); err != nil {
		t.Fatalf("write stub simulator: %v", err)
	}
	return path
}

// StubConfig returns a runner config that executes the stub via /bin/sh,
// logging invocations to logPath when it is non-empty.
func StubConfig(t testing.TB, root, logPath string) runner.Config {
	t.Helper()
	RequireShell(t)
	cfg := runner.DefaultConfig()
	cfg.Interpreter = Shell
	cfg.Simulator = WriteStub(t, root)
	cfg.WorkDir = root
	if logPath != "" {
		cfg.Env = []string{LogEnv + "=" + logPath}
	}
	return cfg
}

// ExitError is a non-zero exit reported by a spy process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// SpyLauncher records invocations instead of spawning processes.
//
// Each started process exits with ExitCode after Delay, or when killed.
type SpyLauncher struct {
	ExitCode int
	Delay    time.Duration
	StartErr error

	mu          sync.Mutex
	invocations []runner.Invocation
	kills       int
}

// Start records inv and returns a fake process.
func (s *SpyLauncher) Start(inv runner.Invocation) (runner.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = append(s.invocations, inv)
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return &spyProcess{spy: s, code: s.ExitCode, delay: s.Delay, killed: make(chan struct{})}, nil
}

// Invocations returns a copy of the recorded invocations.
func (s *SpyLauncher) Invocations() []runner.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runner.Invocation, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// Count returns the number of recorded invocations.
func (s *SpyLauncher) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invocations)
}

// Kills returns how many processes were killed.
func (s *SpyLauncher) Kills() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kills
}

type spyProcess struct {
	spy      *SpyLauncher
	code     int
	delay    time.Duration
	killOnce sync.Once
	killed   chan struct{}
}

func (p *spyProcess) Wait() error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-p.killed:
			return &ExitError{Code: -1}
		}
	}
	if p.code != 0 {
		return &ExitError{Code: p.code}
	}
	return nil
}

func (p *spyProcess) Kill() error {
	p.killOnce.Do(func() {
		p.spy.mu.Lock()
		p.spy.kills++
		p.spy.mu.Unlock()
		close(p.killed)
	})
	return nil
}

var _ runner.Launcher = (*SpyLauncher)(nil)
