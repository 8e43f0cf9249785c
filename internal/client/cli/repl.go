package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execFunc runs one parsed command line.
type execFunc func(ctx context.Context, args []string) error

const replHelp = `Available commands:
  friends add|list|update|delete|range|tag|untag
  tags add|list|rename|delete
  attach add|list|url|delete
  sync, status, help, exit
Append --help to any command for its flags.`

// runREPL starts a read-eval-print loop over reader.
//
// Each line is split into arguments (quotes group words) and handed to exec.
// "help" prints the command summary, "exit" or "quit" (or EOF) leaves the
// loop. Errors are printed and the loop goes on.
func runREPL(ctx context.Context, exec execFunc, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("offsync %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}

		args, perr := splitArgs(line)
		if perr != nil {
			printlnFn("error:", perr)
			continue
		}
		if len(args) == 0 {
			if err != nil {
				return
			}
			continue
		}

		switch strings.ToLower(args[0]) {
		case "help", "?":
			printlnFn(replHelp)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if xerr := exec(ctx, args); xerr != nil {
				printlnFn("error:", xerr)
			}
		}

		if err != nil {
			return
		}
	}
}
