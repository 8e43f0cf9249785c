package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	calls [][]string
	err   error
}

func (f *fakeExec) exec(_ context.Context, args []string) error {
	f.calls = append(f.calls, args)
	return f.err
}

func capturePrints(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	capturePrints(t)

	input := strings.Join([]string{
		"help",
		"friends add \"Ada Lovelace\" --age 36",
		"",
		"friends list",
		"sync",
		"exit",
		"friends list",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec.exec, func() string { return "(online)" }, bufio.NewReader(strings.NewReader(input)))

	if len(exec.calls) != 3 {
		t.Fatalf("expected 3 calls before exit, got %v", exec.calls)
	}
	if got := exec.calls[0]; len(got) != 5 || got[2] != "Ada Lovelace" {
		t.Fatalf("quoted argument not kept together: %q", got)
	}
	if exec.calls[2][0] != "sync" {
		t.Fatalf("unexpected order: %v", exec.calls)
	}
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	lines := capturePrints(t)

	exec := &fakeExec{err: errors.New("boom")}
	runREPL(context.Background(), exec.exec, func() string { return "" }, bufio.NewReader(strings.NewReader("tags list\n'open\nquit\n")))

	if len(exec.calls) != 1 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	var errs int
	for _, l := range *lines {
		if strings.HasPrefix(l, "error:") {
			errs++
		}
	}
	if errs != 2 {
		t.Fatalf("expected command and parse errors to be printed, got %v", *lines)
	}
}

func TestRunREPL_LastLineWithoutNewline(t *testing.T) {
	capturePrints(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec.exec, func() string { return "" }, bufio.NewReader(strings.NewReader("status")))

	if len(exec.calls) != 1 || exec.calls[0][0] != "status" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	capturePrints(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	runREPL(ctx, exec.exec, func() string { return "" }, bufio.NewReader(strings.NewReader("status\n")))

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
