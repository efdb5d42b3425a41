package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/goprovision/buildinfo"
	"github.com/nomis52/goprovision/server"
	serverconfig "github.com/nomis52/goprovision/server/config"
	"github.com/nomis52/goprovision/server/cron"
)

type Args struct {
	ConfigPath  string
	Cron        string
	Check       bool
	ShowVersion bool
}

func main() {
	args, err := parseArgs(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err == nil {
		err = run(args, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args Args, out io.Writer) error {
	if args.ShowVersion {
		fmt.Fprintf(out, "goprovision-server %s\n", buildinfo.Get())
		return nil
	}

	srvCfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if args.Check {
		fmt.Fprintf(out, "Configuration is valid: %s (%d scheduled documents)\n", args.ConfigPath, len(srvCfg.Cron))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Logger().Info("received signal, shutting down")
	}()

	return srv.Run(ctx)
}

// loadConfig reads the server config and appends the --cron triggers to the
// ones it schedules.
func loadConfig(args Args) (*serverconfig.ServerConfig, error) {
	if args.ConfigPath == "" {
		return nil, errors.New("config flag (-c or --config) is required")
	}

	srvCfg, err := serverconfig.LoadConfig(args.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if args.Cron != "" {
		specs, err := cron.ParseTriggerSpecs(args.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid --cron: %w", err)
		}
		srvCfg.Cron = append(srvCfg.Cron, specs...)
	}
	return srvCfg, nil
}

func parseArgs(name string, argv []string, stderr io.Writer) (Args, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var args Args
	fs.StringVar(&args.ConfigPath, "config", "", "Path to server config file")
	fs.StringVar(&args.ConfigPath, "c", "", "Path to server config file (shorthand)")
	fs.StringVar(&args.Cron, "cron", "", "Additional scheduled documents: document[,edit]:schedule;...")
	fs.BoolVar(&args.Check, "check", false, "Load the configuration, build the server and exit")
	fs.BoolVar(&args.ShowVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options]\n", name)
		fmt.Fprintf(stderr, "\ngoprovision server - on-prem provider bootstrap over HTTP\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  %s --config /etc/goprovision/server.yaml\n", name)
		fmt.Fprintf(stderr, "  %s -c server.yaml --cron 'dc1.yaml:0 2 * * *;dc1-nodes.yaml,edit:0 3 * * *'\n", name)
	}

	if err := fs.Parse(argv); err != nil {
		return Args{}, err
	}
	if fs.NArg() > 0 {
		return Args{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return args, nil
}
