package workspace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/loykin/funcprov/internal/common"
)

// Opener opens a provisioned project folder.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// DefaultEditor is the VS Code launcher on this platform.
func DefaultEditor() string {
	if runtime.GOOS == "windows" {
		return "code.cmd"
	}
	return "code"
}

// EditorOpener launches an editor command with the folder as its last argument.
type EditorOpener struct {
	// Command is the executable; empty selects DefaultEditor.
	Command string
	// Args are placed before the path, e.g. ["--new-window"].
	Args   []string
	Logger *common.Logger

	// run is replaced in tests.
	run func(ctx context.Context, name string, args ...string) error
}

func (o EditorOpener) Open(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("workspace: path is required")
	}
	name := strings.TrimSpace(o.Command)
	if name == "" {
		name = DefaultEditor()
	}
	args := append(append([]string{}, o.Args...), path)

	logger := o.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	logger.WithComponent("workspace").Info("opening workspace", "editor", name, "path", path)

	run := o.run
	if run == nil {
		run = startDetached
	}
	if err := run(ctx, name, args...); err != nil {
		return fmt.Errorf("workspace: open %s with %s: %w", path, name, err)
	}
	return nil
}

// startDetached starts the editor and returns without waiting; the editor outlives the call.
func startDetached(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// NoopOpener is used when opening the editor is disabled.
type NoopOpener struct{}

func (NoopOpener) Open(context.Context, string) error { return nil }
