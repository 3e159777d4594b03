package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"dkprun/internal/client"
	"dkprun/internal/config"
)

type clientFlags struct {
	port    int
	quiet   bool
	timeout time.Duration
}

func (f *clientFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.port, "port", config.Default().Port, "server TCP `port` (env: DKP_PORT)")
	fs.BoolVar(&f.quiet, "quiet", false, "do not draw progress bars")
	fs.DurationVar(&f.timeout, "timeout", 15*time.Second, "connect `timeout`")
}

func newSendCmd() *command {
	var (
		f       clientFlags
		workers int
	)
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	f.register(fs)
	fs.IntVar(&workers, "workers", 1, "number of files sent in parallel, one connection each")

	return &command{
		UsageLine: "dkp send [flags] <ip> <file> [<file>...]",
		Short:     "upload local files to a dkp server",
		Flag:      fs,
		Run: func(ctx context.Context, cmd *command, args []string) error {
			if len(args) < 2 {
				return errUsage
			}
			return runSend(ctx, cmd, f, workers, args[0], args[1:])
		},
	}
}

func runSend(ctx context.Context, cmd *command, f clientFlags, workers int, ip string, paths []string) error {
	if workers < 1 {
		workers = 1
	}
	opts := []client.Option{client.WithDialTimeout(f.timeout)}
	if !f.quiet && len(paths) == 1 {
		opts = append(opts, client.WithProgress(progressBar(cmd.stderr)))
	}
	cl := client.New(opts...)
	st := newStatus(cmd.stdout)

	start := time.Now()
	var (
		eg     errgroup.Group
		total  = make([]int64, len(paths))
		failed = make([]bool, len(paths))
	)
	eg.SetLimit(workers)
	for i, path := range paths {
		eg.Go(func() error {
			n, err := cl.SendFile(ctx, path, ip, f.port)
			total[i] = n
			if err != nil {
				failed[i] = true
				st.fail("%s: %v", path, err)
				return err
			}
			st.ok("%s -> %s:%d  (%s)", path, ip, f.port, size(n))
			return nil
		})
	}
	err := eg.Wait()

	var sent, bytes int64
	for i := range paths {
		if !failed[i] {
			sent++
			bytes += total[i]
		}
	}
	fmt.Fprintf(cmd.stdout, "Sent %d of %d file(s), %s in %s\n", sent, len(paths), size(bytes), time.Since(start).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	return nil
}
