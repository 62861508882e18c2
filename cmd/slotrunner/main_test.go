// File: cmd/slotrunner/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("roster missing")))
	assert.Equal(t, 130, exitCode(fmt.Errorf("run interrupted: %w", context.Canceled)))
}

func TestMain_UsesExecuteResult(t *testing.T) {
	origExit, origExecute := osExit, execute
	t.Cleanup(func() { osExit, execute = origExit, origExecute })

	var (
		code   = -1
		runCtx context.Context
	)
	execute = func(ctx context.Context) error {
		require.NotNil(t, ctx)
		runCtx = ctx
		return errors.New("boom")
	}
	osExit = func(c int) {
		code = c
		require.NotNil(t, runCtx)
		assert.Error(t, runCtx.Err(), "signal handler is released before exit")
	}

	main()
	assert.Equal(t, 1, code)
}

func TestRun_CancelledCommand(t *testing.T) {
	origExecute := execute
	t.Cleanup(func() { execute = origExecute })
	execute = func(ctx context.Context) error {
		return fmt.Errorf("run interrupted: %w", context.Canceled)
	}

	assert.Equal(t, 130, run())
}

func TestHandlePanic(t *testing.T) {
	origExit, origWrite := osExit, osWriteFile
	t.Cleanup(func() { osExit, osWriteFile = origExit, origWrite })

	var (
		code    = -1
		written string
		path    string
	)
	osExit = func(c int) { code = c }
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		path, written = name, string(data)
		return nil
	}

	func() {
		defer handlePanic()
		panic("renderer crashed")
	}()

	assert.Equal(t, 2, code)
	assert.Equal(t, panicLogFile, path)
	assert.Contains(t, written, "panic: renderer crashed")
}

func TestHandlePanic_NoPanic(t *testing.T) {
	origExit := osExit
	t.Cleanup(func() { osExit = origExit })
	called := false
	osExit = func(int) { called = true }

	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
