// Command splitclaim is the client for shared bills: it registers a local
// identity, shows a bill with the caller's share, claims items and follows
// changes live.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmynk/splitclaim/internal/gateway"
)

const usage = `usage: splitclaim <command> [arguments]

commands:
  register <name>          create the local identity
  whoami                   print the local identity
  show <bill-id>           print the bill and your share
  claim <bill-id> <item>   join or leave an item's split
  watch <bill-id>          print the bill on every change
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	a, err := newApp(ctx, stdout)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer a.close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		err = a.register(ctx, rest)
	case "whoami":
		err = a.whoami(ctx)
	case "show":
		err = a.show(ctx, rest)
	case "claim":
		err = a.claim(ctx, rest)
	case "watch":
		err = a.watch(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "splitclaim: %v\n\n%s", err, usage)
		return 2
	}
	if err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "splitclaim: [%s] %v\n", gateway.Kind(err), err)
}
