package main

import (
	"context"
	"flag"

	"dkprun/internal/client"
)

func newTakeCmd() *command {
	var (
		f      clientFlags
		saveAs string
	)
	fs := flag.NewFlagSet("take", flag.ContinueOnError)
	f.register(fs)
	fs.StringVar(&saveAs, "o", "", "save to `file` instead of the base name of <name>")

	return &command{
		UsageLine: "dkp take [flags] <ip> <name>",
		Short:     "download a file from a dkp server",
		Flag:      fs,
		Run: func(ctx context.Context, cmd *command, args []string) error {
			if len(args) != 2 {
				return errUsage
			}
			return runTake(ctx, cmd, f, args[0], args[1], saveAs)
		},
	}
}

func runTake(ctx context.Context, cmd *command, f clientFlags, ip, name, saveAs string) error {
	opts := []client.Option{client.WithDialTimeout(f.timeout)}
	if !f.quiet {
		opts = append(opts, client.WithProgress(progressBar(cmd.stderr)))
	}
	st := newStatus(cmd.stdout)

	n, err := client.New(opts...).TakeFile(ctx, name, ip, f.port, saveAs)
	if err != nil {
		st.fail("%s: %v", name, err)
		return err
	}
	if n == 0 {
		// the protocol has no way to tell these apart.
		st.warn("%s: received 0 bytes, the file is missing on the server or empty", name)
		return nil
	}
	st.ok("%s <- %s:%d  (%s)", name, ip, f.port, size(n))
	return nil
}
