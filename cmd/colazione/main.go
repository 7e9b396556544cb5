// Command colazione is the operator tool for the breakfast record store: it
// bootstraps the first administrator and manages snapshot exports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"colazione/internal/blob"
	"colazione/internal/config"
	"colazione/internal/core"
	"colazione/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage: colazione [-env FILE] [-metrics FILE] <command> [flags]

commands:
  seed-admin    create the first administrator and its group
  export        write a snapshot of every record set to the blob store
  restore       load a snapshot into an empty store
  prune         delete all but the newest exports
  list-exports  list the exports in the blob store
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("colazione", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	envFile := fs.String("env", ".env", "dotenv file loaded before the environment")
	metricsFile := fs.String("metrics", "", "write the operation metrics in Prometheus text format to this file on exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}
	log, err := cfg.NewLogger(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if err := dispatch(ctx, cfg, log, cmd, cmdArgs, *metricsFile, stdout, stderr); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
		log.WithError(err).WithField("command", cmd).WithField("kind", domain.KindOf(err)).Error("command failed")
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type app struct {
	cfg      config.Config
	log      *logrus.Logger
	svc      *core.Service
	exporter *core.Exporter
	registry *prometheus.Registry
	stdout   io.Writer
}

func dispatch(ctx context.Context, cfg config.Config, log *logrus.Logger, cmd string, args []string, metricsFile string, stdout, stderr io.Writer) error {
	var handler func(context.Context, *app, *flag.FlagSet, []string) error
	switch cmd {
	case "seed-admin":
		handler = seedAdmin
	case "export":
		handler = exportSnapshot
	case "restore":
		handler = restoreSnapshot
	case "prune":
		handler = pruneExports
	case "list-exports":
		handler = listExports
	default:
		return usageError{msg: fmt.Sprintf("unknown command %q\n%s", cmd, usage)}
	}

	a, cleanup, err := newApp(ctx, cfg, log, stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	err = handler(ctx, a, fs, args)
	if metricsFile != "" {
		// Failed commands are counted too, so the file is written either way.
		if werr := prometheus.WriteToTextfile(metricsFile, a.registry); werr != nil {
			log.WithError(werr).WithField("path", metricsFile).Warn("metrics not written")
			if err == nil {
				err = werr
			}
		}
	}
	return err
}

func newApp(ctx context.Context, cfg config.Config, log *logrus.Logger, stdout io.Writer) (*app, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	store, err := core.OpenPersistentStore(ctx, cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, err
	}
	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	svc := core.NewService(store,
		core.WithLocation(loc),
		core.WithLogger(core.NewLogrusLogger(log)),
		core.WithMetricsRecorder(metrics),
	)
	log.WithFields(logrus.Fields{
		"storage": store.Driver(),
		"blob":    blobs.Driver(),
	}).Debug("store opened")
	a := &app{cfg: cfg, log: log, svc: svc, exporter: core.NewExporter(svc, blobs), registry: registry, stdout: stdout}
	return a, func() { _ = store.Close() }, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usageError{msg: fmt.Sprintf("%s: unexpected arguments %v", fs.Name(), fs.Args())}
	}
	return nil
}

func seedAdmin(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	var input core.UserInput
	fs.StringVar(&input.Username, "username", "admin", "administrator username")
	fs.StringVar(&input.Password, "password", "", "administrator password (or COLAZIONE_ADMIN_PASSWORD)")
	fs.StringVar(&input.Group, "group", "Admin", "group the administrator belongs to")
	if err := parse(fs, args); err != nil {
		return err
	}
	if input.Password == "" {
		input.Password = os.Getenv(config.EnvPrefix + "ADMIN_PASSWORD")
	}
	if input.Password == "" {
		return usageError{msg: "seed-admin: -password is required"}
	}
	user, _, err := a.svc.SeedAdmin(ctx, input)
	if err != nil {
		return err
	}
	a.log.WithField("username", user.Username).WithField("group", user.Group).Info("administrator created")
	return a.print(map[string]string{"username": user.Username, "group": user.Group, "role": string(user.Role)})
}

func exportSnapshot(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	prune := fs.Bool("prune", false, "apply the retention policy after exporting")
	if err := parse(fs, args); err != nil {
		return err
	}
	info, err := a.exporter.Export(ctx)
	if err != nil {
		return err
	}
	if *prune {
		if _, err := a.exporter.Prune(ctx, a.cfg.ExportRetain); err != nil {
			return err
		}
	}
	return a.print(info)
}

func restoreSnapshot(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	id := fs.String("id", "", "export id to restore")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError{msg: "restore: -id is required"}
	}
	if _, err := a.exporter.Restore(ctx, *id); err != nil {
		return err
	}
	return a.print(map[string]string{"restored": *id})
}

func pruneExports(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	keep := fs.Int("keep", a.cfg.ExportRetain, "number of exports to keep")
	if err := parse(fs, args); err != nil {
		return err
	}
	removed, err := a.exporter.Prune(ctx, *keep)
	if err != nil {
		return err
	}
	if removed == nil {
		removed = []string{}
	}
	return a.print(map[string]any{"removed": removed, "kept": *keep})
}

func listExports(ctx context.Context, a *app, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args); err != nil {
		return err
	}
	exports, err := a.exporter.List(ctx)
	if err != nil {
		return err
	}
	return a.print(exports)
}
