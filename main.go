package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/buildinfo"
	"github.com/nomis52/goprovision/clients/platformclient"
	"github.com/nomis52/goprovision/config"
	"github.com/nomis52/goprovision/document"
	"github.com/nomis52/goprovision/logging"
	"github.com/nomis52/goprovision/metrics"
	"github.com/nomis52/goprovision/preflight"
	"github.com/nomis52/goprovision/progress"
)

type Args struct {
	ConfigPath   string
	DocumentPath string
	Edit         bool
	ShowVersion  bool
	Validate     bool
	Preflight    bool
}

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	args := parseArgs()

	if args.ShowVersion {
		fmt.Printf("goprovision %s\n", buildinfo.Get())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return provision(ctx, args, os.Stdout)
}

// provision runs one bootstrap for the document and prints the stage table
// to out. Metrics are pushed when a remote write URL is configured.
func provision(ctx context.Context, args Args, out io.Writer) error {
	if args.ConfigPath == "" {
		return errors.New("config flag (-c or --config) is required")
	}
	if args.DocumentPath == "" {
		return errors.New("document flag (-d or --document) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mode := document.Create
	if args.Edit {
		mode = document.Edit
	}

	doc, err := document.LoadFile(args.DocumentPath)
	if err != nil {
		return err
	}
	if err := doc.Validate(mode); err != nil {
		return err
	}
	if args.Validate {
		fmt.Fprintf(out, "Document is valid for %s: %s\n", mode, args.DocumentPath)
		return nil
	}

	logger, err := logging.New(cfg.Logging.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("goprovision started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
		"document", args.DocumentPath,
		"mode", mode.String(),
	)

	if args.Preflight {
		if err := runPreflight(ctx, cfg, doc, logger.Logger, out); err != nil {
			return err
		}
	}

	client, err := platformclient.New(cfg.Platform.URL,
		platformclient.WithToken(cfg.Platform.APIToken),
		platformclient.WithCustomer(cfg.Platform.CustomerUUID),
		platformclient.WithTimeout(cfg.Platform.Timeout),
		platformclient.WithLogger(logger.Component("platformclient")),
	)
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	handler := progress.NewHandler(logger.Logger)
	sinks := []bootstrap.Sink{handler}

	var registry *metrics.PushRegistry
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		registry = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
			Logger:   logger.Component("metrics"),
		})
		bm, err := metrics.NewBootstrapMetrics(registry)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		sinks = append(sinks, bm)
	}

	orch := bootstrap.NewOrchestrator(client,
		bootstrap.WithLogger(logger.Logger),
		bootstrap.WithSink(sinks...),
		bootstrap.WithConcurrency(cfg.Bootstrap.MaxConcurrency),
	)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.RunTimeout)
	defer cancel()
	res, runErr := orch.Run(runCtx, doc, mode)

	fmt.Fprint(out, progress.Render(handler.Summary()))
	if res != nil && res.KeyFingerprint != "" {
		fmt.Fprintf(out, "Access key %s uploaded (%s)\n", doc.Key.Code, res.KeyFingerprint)
	}

	if registry != nil {
		// Push even when the run failed so the failure is visible.
		if err := registry.Flush(ctx); err != nil {
			logger.Error("failed to push metrics", "error", err)
		}
	}

	return runErr
}

// runPreflight logs in to every node of doc before any resource is created.
func runPreflight(ctx context.Context, cfg config.Config, doc *document.Document, logger *slog.Logger, out io.Writer) error {
	checker := preflight.New(
		preflight.WithLogger(logger),
		preflight.WithConcurrency(cfg.Bootstrap.MaxConcurrency),
	)
	report, err := checker.Check(ctx, doc)
	for _, n := range report.Failed() {
		fmt.Fprintf(out, "preflight: %s (%s@%s): %s\n", n.IP, n.User, n.Addr, n.Error)
	}
	return err
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	documentPath := flag.String("document", "", "Path to the provider document (YAML or JSON)")
	documentPathShort := flag.String("d", "", "Path to the provider document (shorthand)")
	edit := flag.Bool("edit", false, "Edit the existing provider named by the document's provider uuid")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate the config and document and exit")
	preflightCheck := flag.Bool("preflight", false, "Check SSH access to every node before bootstrapping")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOn-prem provider bootstrap tool\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml -d dc1.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml -d dc1-nodes.yaml --edit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml -d dc1.yaml --validate\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml -d dc1.yaml --preflight\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" {
		path = *configPathShort
	}
	doc := *documentPath
	if doc == "" {
		doc = *documentPathShort
	}

	return Args{
		ConfigPath:   path,
		DocumentPath: doc,
		Edit:         *edit,
		ShowVersion:  *showVersion || *versionShort,
		Validate:     *validate,
		Preflight:    *preflightCheck,
	}
}
