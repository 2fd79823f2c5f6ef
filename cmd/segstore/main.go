// Command segstore builds, inspects, loads and ships EEG segment stores.
//
//	segstore populate  -config segstore.yaml
//	segstore inspect   -config segstore.yaml
//	segstore load      -config segstore.yaml -epochs 3
//	segstore publish   -config segstore.yaml
//	segstore fetch     -config segstore.yaml -id <generation>
//	segstore generations -config segstore.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/config"
)

// errUsage marks flag errors; the flag package has already reported them.
var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"populate":    {"rebuild the store from discovered recordings", cmdPopulate},
	"inspect":     {"print store statistics and verify every row", cmdInspect},
	"load":        {"run epochs through the batched loader and report throughput", cmdLoad},
	"publish":     {"upload the store as a new generation", cmdPublish},
	"fetch":       {"download a published generation", cmdFetch},
	"generations": {"list or delete published generations", cmdGenerations},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "segstore: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	a := &app{name: args[0], stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "segstore %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: segstore <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
}

// app carries what every command needs once its flags are parsed.
type app struct {
	name   string
	stdout io.Writer
	stderr io.Writer

	cfg    config.Config
	logger *segstore.Logger
}

// flags returns a flag set with the shared -config and -env flags.
func (a *app) flags() (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(a.name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	file := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")
	env := fs.String("env", ".env", "dotenv file (skipped if missing)")
	return fs, file, env
}

// parse parses args and loads the config. adjust runs before validation so
// command flags can override file and environment settings.
func (a *app) parse(fs *flag.FlagSet, file, env *string, args []string, adjust func(*config.Config)) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return errUsage
	}

	src := config.Source{File: *file, EnvFiles: []string{*env}}
	cfg, err := src.Load()
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(&cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}
