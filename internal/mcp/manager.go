package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// procState is the supervision state of one provider.
type procState int

const (
	stateStopped procState = iota
	stateStarting
	stateReady
	stateCrashed
)

func (s procState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateReady:
		return "ready"
	case stateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// procIO bundles the streams and control handle of a spawned child.
type procIO struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	control procControl
}

// launchFunc spawns one provider child. Injectable so tests can serve
// the wire dialect from in-memory pipes instead of real binaries.
type launchFunc func(name string, command string, args []string, env []string) (*procIO, error)

// ProcessManager supervises one child process per configured provider.
type ProcessManager struct {
	providers map[string]config.ProviderConfig
	launch    launchFunc
	grace     time.Duration
	log       *logging.Logger

	mu          sync.Mutex
	supervisors map[string]*supervisor
}

// supervisor is the per-provider lock plus current incarnation. Its
// mutex makes Acquire single-flight: concurrent callers for the same
// provider wait for one spawn instead of racing their own.
type supervisor struct {
	mu    sync.Mutex
	state procState
	proc  *process
}

// ManagerOption configures a ProcessManager.
type ManagerOption func(*ProcessManager)

// WithLauncher replaces the default exec-based spawner.
func WithLauncher(launch launchFunc) ManagerOption {
	return func(m *ProcessManager) { m.launch = launch }
}

// NewProcessManager creates a manager for the configured providers.
// grace is how long ReleaseAll waits after SIGTERM before killing.
func NewProcessManager(providers map[string]config.ProviderConfig, grace time.Duration, log *logging.Logger, opts ...ManagerOption) *ProcessManager {
	m := &ProcessManager{
		providers:   providers,
		launch:      execLaunch,
		grace:       grace,
		log:         log.Named("procmgr"),
		supervisors: make(map[string]*supervisor, len(providers)),
	}
	for name := range providers {
		m.supervisors[name] = &supervisor{state: stateStopped}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Providers returns the configured provider names, sorted.
func (m *ProcessManager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the configured description for a provider.
func (m *ProcessManager) Describe(name string) string {
	return m.providers[name].Description
}

// Acquire returns the live process for a provider, spawning or
// respawning as needed. Single-flight per provider: a second caller
// blocks on the per-provider lock and receives the same incarnation.
func (m *ProcessManager) Acquire(ctx context.Context, name string) (*process, error) {
	m.mu.Lock()
	sup, ok := m.supervisors[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not configured", ErrProviderUnavailable, name)
	}

	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.proc != nil && sup.proc.alive() {
		return sup.proc, nil
	}
	if sup.proc != nil {
		m.log.Warn(ctx, "provider incarnation dead, respawning",
			zap.String("provider", name),
			zap.Error(sup.proc.failureCause()),
		)
	}

	sup.state = stateStarting
	proc, err := m.spawn(ctx, name)
	if err != nil {
		sup.state = stateCrashed
		return nil, err
	}
	sup.proc = proc
	sup.state = stateReady
	return proc, nil
}

// spawn launches a fresh incarnation. Env values are resolved against
// the ambient environment; an unset ${VAR} reference is a configuration
// error, not an empty string.
func (m *ProcessManager) spawn(ctx context.Context, name string) (*process, error) {
	cfg := m.providers[name]

	env, err := expandEnv(name, cfg.Env)
	if err != nil {
		return nil, err
	}

	pio, err := m.launch(name, cfg.Command, cfg.Args, env)
	if err != nil {
		return nil, fmt.Errorf("%w: spawning %q: %v", ErrProviderUnavailable, name, err)
	}

	m.log.Info(ctx, "provider spawned",
		zap.String("provider", name),
		zap.String("command", cfg.Command),
	)
	return newProcess(name, pio.stdin, pio.stdout, pio.control, m.log), nil
}

// ReleaseAll shuts every live provider down: close stdin, SIGTERM, and
// escalate to Kill after the grace period.
func (m *ProcessManager) ReleaseAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, sup := range m.supervisors {
		sup.mu.Lock()
		proc := sup.proc
		sup.proc = nil
		sup.state = stateStopped
		sup.mu.Unlock()
		if proc == nil {
			continue
		}

		wg.Add(1)
		go func(name string, proc *process) {
			defer wg.Done()
			m.stop(ctx, name, proc)
		}(name, proc)
	}
	wg.Wait()
}

func (m *ProcessManager) stop(ctx context.Context, name string, proc *process) {
	_ = proc.stdin.Close()
	if err := proc.control.Signal(); err != nil {
		m.log.Debug(ctx, "signal failed", zap.String("provider", name), zap.Error(err))
	}

	select {
	case <-proc.control.Done():
		m.log.Info(ctx, "provider exited", zap.String("provider", name))
	case <-time.After(m.grace):
		m.log.Warn(ctx, "provider ignored SIGTERM, killing", zap.String("provider", name))
		_ = proc.control.Kill()
		<-proc.control.Done()
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv resolves ${VAR} references in provider env values and
// returns KEY=VALUE pairs layered over the ambient environment.
func expandEnv(provider string, values map[string]string) ([]string, error) {
	env := os.Environ()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		var unset string
		resolved := envRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
			name := envRefPattern.FindStringSubmatch(ref)[1]
			v, ok := os.LookupEnv(name)
			if !ok {
				unset = name
				return ""
			}
			return v
		})
		if unset != "" {
			return nil, fmt.Errorf("%w: provider %q: environment variable %s is not set", ErrProviderUnavailable, provider, unset)
		}
		env = append(env, key+"="+resolved)
	}
	return env, nil
}

// execLaunch is the production launcher built on os/exec. The child's
// stderr passes through for operator visibility.
func execLaunch(name string, command string, args []string, env []string) (*procIO, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = env
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	return &procIO{
		stdin:   stdin,
		stdout:  stdout,
		control: &execControl{cmd: cmd, done: done},
	}, nil
}

type execControl struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (c *execControl) Signal() error { return c.cmd.Process.Signal(syscall.SIGTERM) }

func (c *execControl) Kill() error { return c.cmd.Process.Kill() }

func (c *execControl) Done() <-chan struct{} { return c.done }
