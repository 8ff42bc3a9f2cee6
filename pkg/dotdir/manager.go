// Package dotdir manages the .chatrelay/ and ~/.chatrelay directories that
// hold the config file and the chat CLI's saved thread.
package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".chatrelay"

	// EnvHome names a directory used in place of ~/.chatrelay.
	EnvHome = "CHATRELAY_HOME"
)

// Manager resolves the chatrelay state directory.
type Manager struct {
	workDir func() (string, error)
	homeDir func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkDir overrides how the working directory is found.
func WithWorkDir(fn func() (string, error)) Option {
	return func(m *Manager) { m.workDir = fn }
}

// WithHomeDir overrides how the user home directory is found.
func WithHomeDir(fn func() (string, error)) Option {
	return func(m *Manager) { m.homeDir = fn }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		workDir: os.Getwd,
		homeDir: os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Target returns the absolute path of the chatrelay directory, creating it
// when missing. The first match wins:
//  1. overrideDir
//  2. $CHATRELAY_HOME
//  3. ./.chatrelay in the working directory, if it already exists
//  4. ~/.chatrelay
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chatrelay directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env, nil
	}

	if local, ok := m.localDir(); ok {
		return local, nil
	}

	home, err := m.homeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if home == "" {
		return "", errors.New("getting home directory: empty path")
	}
	return filepath.Join(home, dirName), nil
}

func (m *Manager) localDir() (string, bool) {
	cwd, err := m.workDir()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, dirName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}
