// Package main provides the planalign control-plane CLI entrypoint.
//
// Usage:
//
//	planalign <command> [subcommand] [options]
//
// workspace create/delete, scenario create, run, batch, export, and import
// write state or files; the other commands are read-only.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/planalign/adapter"
	redisadapter "github.com/justapithecus/planalign/adapter/redis"
	"github.com/justapithecus/planalign/adapter/webhook"
	"github.com/justapithecus/planalign/batch"
	"github.com/justapithecus/planalign/bundle"
	"github.com/justapithecus/planalign/compare"
	"github.com/justapithecus/planalign/config"
	"github.com/justapithecus/planalign/log"
	"github.com/justapithecus/planalign/metrics"
	"github.com/justapithecus/planalign/results"
	"github.com/justapithecus/planalign/runtime"
	"github.com/justapithecus/planalign/store"
	"github.com/justapithecus/planalign/telemetry"
	"github.com/justapithecus/planalign/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "planalign",
		Usage:          "PlanAlign workforce simulation control plane",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the settings YAML file",
			},
		},
		Commands: []*cli.Command{
			workspaceCommand(),
			scenarioCommand(),
			runCommand(),
			batchCommand(),
			resultsCommand(),
			compareCommand(),
			exportCommand(),
			importCommand(),
			replayCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// env assembles the shared service graph for one command invocation.
type env struct {
	settings  *config.Settings
	store     *store.Store
	hub       *telemetry.Hub
	collector *metrics.Collector
	executor  *runtime.Executor
	reader    *results.Reader
	bundles   *bundle.Service
}

func buildEnv(c *cli.Context) (*env, error) {
	var settings *config.Settings
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		settings = loaded
	} else {
		settings = config.Default()
	}

	st := store.NewStore(settings.WorkspacesRoot)
	hub := telemetry.NewHub(settings.SubscriberBuffer)
	collector := metrics.NewCollector()

	notifier, err := buildNotifier(settings.Adapter)
	if err != nil {
		return nil, err
	}

	execOpts := []runtime.ExecutorOption{runtime.WithCollector(collector)}
	if notifier != nil {
		execOpts = append(execOpts, runtime.WithNotifier(notifier))
	}
	executor := runtime.NewExecutor(st, hub, settings, execOpts...)

	resolver := results.NewResolver(st, settings.Engine.ProjectDatabase)
	reader := results.NewReader(st, resolver, settings.Engine.DatabaseDriver)

	bundleOpts := []bundle.ServiceOption{bundle.WithCollector(collector)}
	if settings.Export.OutputDir != "" {
		bundleOpts = append(bundleOpts, bundle.WithOutputDir(settings.Export.OutputDir))
	}
	if settings.Export.S3.Bucket != "" {
		uploader, err := bundle.NewUploader(c.Context, bundle.S3Config{
			Bucket:   settings.Export.S3.Bucket,
			Prefix:   settings.Export.S3.Prefix,
			Region:   settings.Export.S3.Region,
			Endpoint: settings.Export.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		bundleOpts = append(bundleOpts, bundle.WithUploader(uploader))
	}
	bundles := bundle.NewService(st, bundleOpts...)

	return &env{
		settings:  settings,
		store:     st,
		hub:       hub,
		collector: collector,
		executor:  executor,
		reader:    reader,
		bundles:   bundles,
	}, nil
}

func buildNotifier(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		wc := webhook.Config{URL: cfg.URL, Headers: cfg.Headers, Timeout: cfg.Timeout.Duration}
		if retries >= 0 {
			wc.Retries = retries
		} else {
			wc.Retries = webhook.DefaultRetries
		}
		return webhook.New(wc)
	case "redis":
		rc := redisadapter.Config{URL: cfg.URL, Channel: cfg.Channel, Timeout: cfg.Timeout.Duration}
		if retries >= 0 {
			rc.Retries = retries
		} else {
			rc.Retries = redisadapter.DefaultRetries
		}
		return redisadapter.New(rc)
	}
	return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
}

func workspaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "workspace",
		Usage: "Manage workspaces",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List workspaces",
				Action: func(c *cli.Context) error {
					e, err := buildEnv(c)
					if err != nil {
						return err
					}
					summaries, err := e.store.ListWorkspaces()
					if err != nil {
						return err
					}
					return printJSON(summaries)
				},
			},
			{
				Name:      "create",
				Usage:     "Create a workspace",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: planalign workspace create <name>", 2)
					}
					e, err := buildEnv(c)
					if err != nil {
						return err
					}
					ws, err := e.store.CreateWorkspace(types.WorkspaceCreate{
						Name:        c.Args().First(),
						Description: c.String("description"),
					}, loadDefaultConfig(e.settings))
					if err != nil {
						return err
					}
					return printJSON(ws)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a workspace recursively",
				ArgsUsage: "<workspace-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: planalign workspace delete <workspace-id>", 2)
					}
					e, err := buildEnv(c)
					if err != nil {
						return err
					}
					return e.store.DeleteWorkspace(c.Args().First())
				},
			},
		},
	}
}

func scenarioCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenario",
		Usage: "Manage scenarios",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List scenarios in a workspace",
				ArgsUsage: "<workspace-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: planalign scenario list <workspace-id>", 2)
					}
					e, err := buildEnv(c)
					if err != nil {
						return err
					}
					scenarios, err := e.store.ListScenarios(c.Args().First())
					if err != nil {
						return err
					}
					return printJSON(scenarios)
				},
			},
			{
				Name:      "create",
				Usage:     "Create a scenario",
				ArgsUsage: "<workspace-id> <name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "overrides", Usage: "JSON config overrides"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: planalign scenario create <workspace-id> <name>", 2)
					}
					e, err := buildEnv(c)
					if err != nil {
						return err
					}
					overrides := types.ConfigMap{}
					if raw := c.String("overrides"); raw != "" {
						if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
							return fmt.Errorf("invalid overrides JSON: %w", err)
						}
					}
					sc, err := e.store.CreateScenario(c.Args().First(), types.ScenarioCreate{
						Name:            c.Args().Get(1),
						Description:     c.String("description"),
						ConfigOverrides: overrides,
					})
					if err != nil {
						return err
					}
					return printJSON(sc)
				},
			},
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a scenario simulation",
		ArgsUsage: "<workspace-id> <scenario-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: planalign run <workspace-id> <scenario-id>", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}
			workspaceID, scenarioID := c.Args().First(), c.Args().Get(1)

			cfg, err := e.store.MergedConfig(workspaceID, scenarioID)
			if err != nil {
				return err
			}
			if cfg == nil {
				return cli.Exit("workspace or scenario not found", 1)
			}

			runID := uuid.New().String()
			sub := e.hub.Subscribe(runID)
			defer e.hub.Unsubscribe(runID, sub)

			done := make(chan error, 1)
			go func() {
				done <- e.executor.Execute(c.Context, workspaceID, scenarioID, runID, cfg, false)
			}()

			logger := log.NewLogger(log.RunContext{RunID: runID}).Sugar()
			for {
				select {
				case snapshot, ok := <-sub.C():
					if ok {
						logger.Infof("%3d%% %-18s year=%d events=%d",
							snapshot.Progress, snapshot.CurrentStage, snapshot.CurrentYear, snapshot.EventsGenerated)
					}
				case err := <-done:
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return nil
				}
			}
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Run all (or selected) scenarios in a workspace",
		ArgsUsage: "<workspace-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "parallel", Usage: "bounded parallel scheduling"},
			&cli.StringFlag{Name: "scenarios", Usage: "comma-separated scenario ids"},
			&cli.StringFlag{Name: "name", Usage: "batch name"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: planalign batch <workspace-id>", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}

			var scenarioIDs []string
			if raw := c.String("scenarios"); raw != "" {
				scenarioIDs = strings.Split(raw, ",")
			}

			scheduler := batch.NewScheduler(e.store, e.hub, e.executor,
				batch.WithCollector(e.collector),
				batch.WithParallelism(e.settings.MaxConcurrentSimulations))

			job, err := scheduler.Create(c.Args().First(), scenarioIDs, c.String("name"), c.Bool("parallel"), "")
			if err != nil {
				return err
			}
			execErr := scheduler.Execute(c.Context, job.ID)
			if err := printJSON(scheduler.Get(job.ID)); err != nil {
				return err
			}
			if execErr != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func resultsCommand() *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "Read result aggregates for a scenario",
		ArgsUsage: "<workspace-id> <scenario-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: planalign results <workspace-id> <scenario-id>", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}
			res, err := e.reader.Read(c.Context, c.Args().First(), c.Args().Get(1))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare scenarios against a baseline",
		ArgsUsage: "<workspace-id> <scenario-id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "baseline", Usage: "baseline scenario id (default: first)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return cli.Exit("usage: planalign compare <workspace-id> <scenario-id> <scenario-id>...", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}
			engine := compare.NewEngine(e.store, e.reader, nil)
			response, err := engine.Compare(c.Context, c.Args().First(), c.Args().Tail(), c.String("baseline"))
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a workspace bundle",
		ArgsUsage: "<workspace-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: planalign export <workspace-id>", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}
			path, result, err := e.bundles.Export(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(path)
			return printJSON(result)
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a workspace bundle",
		ArgsUsage: "<bundle-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resolution", Usage: "conflict resolution: rename, replace, or skip"},
			&cli.StringFlag{Name: "name", Usage: "new name when resolution=rename"},
			&cli.BoolFlag{Name: "validate", Usage: "validate only, do not import"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: planalign import <bundle-file>", 2)
			}
			e, err := buildEnv(c)
			if err != nil {
				return err
			}
			path := c.Args().First()

			if c.Bool("validate") {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				validation, err := e.bundles.Validate(c.Context, path, info.Size())
				if err != nil {
					return err
				}
				return printJSON(validation)
			}

			result, err := e.bundles.Import(c.Context, path,
				types.ConflictResolution(c.String("resolution")), c.String("name"))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Replay an archived run's telemetry journal",
		ArgsUsage: "<telemetry.bin>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: planalign replay <telemetry.bin>", 2)
			}
			snapshots, err := telemetry.ReadJournal(c.Args().First())
			if err != nil {
				return err
			}
			for _, snapshot := range snapshots {
				frame, err := telemetry.EncodeFrame(snapshot)
				if err != nil {
					return err
				}
				fmt.Println(string(frame))
			}
			return nil
		},
	}
}

// loadDefaultConfig reads the built-in simulation defaults, when present.
func loadDefaultConfig(settings *config.Settings) types.ConfigMap {
	if settings.DefaultConfigPath == "" {
		return nil
	}
	data, err := os.ReadFile(settings.DefaultConfigPath)
	if err != nil {
		return nil
	}
	cfg := types.ConfigMap{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return cfg
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
