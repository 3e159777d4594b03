// Command dkp moves single files between machines over plain TCP.
//
// Usage:
//
//	dkp serve [flags]                       receive and serve files
//	dkp send  [flags] <ip> <file>...        upload files, one connection each
//	dkp take  [flags] <ip> <name>           download a file
//	dkp version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

var version = "dev"

// secrets lists the files that environment defaults are loaded from.
var secrets = []string{".env", ".env.txt"}

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage is returned by a command when its arguments are wrong.
var errUsage = errors.New("invalid usage")

// command is one dkp subcommand.
type command struct {
	// UsageLine is the one-line usage message, the second word is the
	// command name.
	UsageLine string
	// Short is the description shown in the command list.
	Short string
	// Flag is the set of flags specific to this command.
	Flag *flag.FlagSet
	// Run runs the command with the arguments that follow the flags.
	Run func(ctx context.Context, cmd *command, args []string) error

	stdout io.Writer
	stderr io.Writer
}

func (c *command) Name() string {
	name := c.UsageLine
	if i := strings.Index(name, " "); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, " "); i >= 0 {
		name = name[:i]
	}
	return name
}

func (c *command) Usage() {
	fmt.Fprintf(c.stderr, "usage: %s\n\n%s.\n", c.UsageLine, c.Short)
	if c.Flag != nil {
		var hasFlags bool
		c.Flag.VisitAll(func(*flag.Flag) { hasFlags = true })
		if hasFlags {
			fmt.Fprintln(c.stderr, "\nFlags:")
			c.Flag.PrintDefaults()
		}
	}
}

// commands returns a fresh set of commands writing to stdout and stderr.
func commands(stdout, stderr io.Writer) []*command {
	cmds := []*command{
		newServeCmd(),
		newSendCmd(),
		newTakeCmd(),
		newVersionCmd(),
	}
	for _, c := range cmds {
		c.stdout, c.stderr = stdout, stderr
		if c.Flag == nil {
			c.Flag = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		}
		c.Flag.SetOutput(stderr)
		c.Flag.Usage = c.Usage
	}
	return cmds
}

func usage(w io.Writer, cmds []*command) {
	fmt.Fprintf(w, "dkp %s -- single file transfer over TCP\n\nUsage:\n\n\tdkp <command> [flags] [arguments]\n\nCommands:\n\n", version)
	for _, c := range cmds {
		fmt.Fprintf(w, "\t%-8s %s\n", c.Name(), c.Short)
	}
	fmt.Fprintln(w, "\nUse \"dkp <command> -h\" for more information about a command.")
}

// run executes the command line args and returns the exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmds := commands(stdout, stderr)
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr, cmds)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	for _, c := range cmds {
		if c.Name() != args[0] {
			continue
		}
		if err := c.Flag.Parse(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return exitOK
			}
			return exitUsage
		}
		if err := c.Run(ctx, c, c.Flag.Args()); err != nil {
			if errors.Is(err, errUsage) {
				c.Usage()
				return exitUsage
			}
			fmt.Fprintf(stderr, "dkp %s: %v\n", c.Name(), err)
			return exitError
		}
		return exitOK
	}
	fmt.Fprintf(stderr, "dkp: unknown command %q\n\n", args[0])
	usage(stderr, cmds)
	return exitUsage
}

// loadSecrets loads environment defaults from the files that exist.
func loadSecrets(files []string) {
	for _, f := range files {
		godotenv.Load(f)
	}
}

func main() {
	loadSecrets(secrets)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newVersionCmd() *command {
	return &command{
		UsageLine: "dkp version",
		Short:     "print the dkp version",
		Run: func(ctx context.Context, cmd *command, args []string) error {
			fmt.Fprintln(cmd.stdout, version)
			return nil
		},
	}
}
