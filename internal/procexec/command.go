// Package procexec runs the external mesher and solver executables.
package procexec

import (
	"os/exec"
	"strconv"
	"sync"
)

// CommandExecutor defines an interface for executing one external command.
// This abstraction enables unit testing without real process execution.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// SetDir sets the working directory of the command.
	SetDir(dir string)
}

// CommandBuilder defines an interface for building commands.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor for the executable and arguments.
	BuildCommand(name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// SetDir sets the working directory.
func (r *RealCommandExecutor) SetDir(dir string) {
	r.cmd.Dir = dir
}

// RealCommandBuilder implements CommandBuilder using exec.Command.
// Commands carry no context: a started solver always runs to completion.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (b *RealCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.Command(name, args...)}
}

// MockExitError mimics *exec.ExitError for tests.
type MockExitError struct {
	Code int
}

func (e *MockExitError) Error() string { return "exit status " + strconv.Itoa(e.Code) }

// ExitCode returns the simulated exit status.
func (e *MockExitError) ExitCode() int { return e.Code }

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// OnRun, when set, replaces Output and Err. It receives the working
	// directory so a fake solver can drop artifacts there.
	OnRun func(dir string) ([]byte, error)

	mu        sync.Mutex
	dir       string
	runCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.mu.Lock()
	m.runCalled = true
	dir := m.dir
	m.mu.Unlock()
	if m.OnRun != nil {
		return m.OnRun(dir)
	}
	return m.Output, m.Err
}

// SetDir records the working directory.
func (m *MockCommandExecutor) SetDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
}

// RunCalled reports whether Run was called.
func (m *MockCommandExecutor) RunCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCalled
}

// MockCommandBuilder implements CommandBuilder for testing. It is safe for
// concurrent use by batch workers.
type MockCommandBuilder struct {
	// ExecutorFactory creates executors based on the command. If nil, every
	// command succeeds with no output.
	ExecutorFactory func(name string, args []string) *MockCommandExecutor

	mu       sync.Mutex
	commands []MockBuiltCommand
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand creates a MockCommandExecutor and records the command details.
func (b *MockCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	b.mu.Lock()
	b.commands = append(b.commands, MockBuiltCommand{Name: name, Args: append([]string(nil), args...)})
	b.mu.Unlock()

	if b.ExecutorFactory != nil {
		return b.ExecutorFactory(name, args)
	}
	return &MockCommandExecutor{}
}

// Commands returns a copy of all commands built so far.
func (b *MockCommandBuilder) Commands() []MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MockBuiltCommand(nil), b.commands...)
}
