// Package testutil holds shared helpers for package and integration tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/vk/sugarpipe/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a background context carrying a debug-level text logger
// that writes into the returned buffer. The captured log is dumped on
// cleanup when SUGARPIPE_TEST_LOGS=true.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Cleanup(func() {
		if os.Getenv("SUGARPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return ctxlog.WithLogger(context.Background(), logger), logBuffer
}

// Call records one invocation made through a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// FakeRunner is a scripted toolexec.Runner. RunFunc decides the outcome of
// every call; each call is recorded before RunFunc is invoked.
type FakeRunner struct {
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements toolexec.Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	fn := f.RunFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("testutil: unexpected command %s %v", name, args)
	}
	return fn(ctx, name, args...)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// FlagValue returns the argument following flag in args, if present.
func FlagValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}
