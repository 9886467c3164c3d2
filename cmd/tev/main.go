// tev is a CLI for running and tailing tev trace-event servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	debugFlag bool

	info  *log.Logger
	debug *log.Logger
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("tev")
	rootFlags.AddFlag(ff.FlagConfig{
		ShortName: 'd',
		LongName:  "debug",
		Value:     ffval.NewValue(&rootConfig.debugFlag),
		Usage:     "log debug information",
		NoDefault: true,
	})

	rootCommand := &ff.Command{
		Name:      "tev",
		ShortHelp: "run or tail a tev trace-event server",
		Flags:     rootFlags,
	}

	serveConfig := &serveConfig{rootConfig: rootConfig}
	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveConfig.register(serveFlags)
	rootCommand.Subcommands = append(rootCommand.Subcommands, &ff.Command{
		Name:      "serve",
		ShortHelp: "serve a demo workload with the tev HTTP surface",
		Flags:     serveFlags,
		Exec:      serveConfig.Exec,
	})

	streamConfig := &streamConfig{rootConfig: rootConfig}
	streamFlags := ff.NewFlagSet("stream").SetParent(rootFlags)
	streamConfig.register(streamFlags)
	rootCommand.Subcommands = append(rootCommand.Subcommands, &ff.Command{
		Name:      "stream",
		ShortHelp: "continuously stream trace events to the terminal",
		Flags:     streamFlags,
		Exec:      streamConfig.Exec,
	})

	defer func() {
		if errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
			err = nil
		}
	}()

	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("TEV")); err != nil {
		return err
	}

	rootConfig.info = log.New(stderr, "", log.LstdFlags)
	if rootConfig.debugFlag {
		rootConfig.debug = log.New(stderr, "[DEBUG] ", log.LstdFlags|log.Lmsgprefix)
	} else {
		rootConfig.debug = log.New(io.Discard, "", 0)
	}

	return rootCommand.Run(ctx)
}
