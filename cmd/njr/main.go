package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nativejinja"
	"nativejinja/lexer"
)

// appEnv carries per-invocation state through the command context so
// subcommand actions stay free of package globals.
type appEnv struct {
	Log     *zap.Logger
	started time.Time
}

type appEnvKey struct{}

func contextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, appEnvKey{}, &appEnv{Log: zap.NewNop(), started: time.Now()})
}

func envFromContext(ctx context.Context) *appEnv {
	if env, ok := ctx.Value(appEnvKey{}).(*appEnv); ok {
		return env
	}
	return &appEnv{Log: zap.NewNop()}
}

// initializeAppContext prepares logging before command execution but after
// the command line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := envFromContext(ctx)

	log, err := buildLogger(cmd.Bool("debug"), cmd.Bool("quiet"))
	if err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.Log = log
	env.Log.Debug("program started", zap.Strings("args", os.Args), zap.String("ver", appVersion()), zap.String("runtime", runtime.Version()))
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	env.Log.Debug("program ended", zap.Duration("elapsed", time.Since(env.started)), zap.Strings("parsed args", cmd.Args().Slice()))
	// stderr cannot be synced on most platforms, nothing useful to report
	_ = env.Log.Sync()
	return nil
}

// Ignore urfave/cli default error handling - cli.Exit() is non-transparent
// and unnecessary, subcommands return regular errors instead.
var errWasHandled bool

// exitErrHandler runs before the app context is destroyed, so failing
// subcommands get logged through the configured logger.
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := envFromContext(ctx)
	if env.Log != nil {
		env.Log.Error("program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// nothing special, error is reported either by exitErrHandler or on
	// exit directly to stderr.
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	envFromContext(ctx).Log.Warn("unknown command, nothing to do", zap.String("command", name))
}

func buildLogger(debugMode, quiet bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.DisableStacktrace = true
	switch {
	case debugMode:
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case quiet:
		config.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return config.Build()
}

func appVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "devel"
}

// parseSyntaxOverrides applies --syntax key=value pairs on top of the
// default delimiter set.
func parseSyntaxOverrides(pairs []string) (lexer.SyntaxConfig, error) {
	config := lexer.DefaultSyntax()
	for _, pair := range pairs {
		key, val, found := strings.Cut(pair, "=")
		if !found || val == "" {
			return config, fmt.Errorf("malformed syntax override %q, expected key=value", pair)
		}
		switch key {
		case "block-start":
			config.BlockStart = val
		case "block-end":
			config.BlockEnd = val
		case "var-start":
			config.VarStart = val
		case "var-end":
			config.VarEnd = val
		case "comment-start":
			config.CommentStart = val
		case "comment-end":
			config.CommentEnd = val
		default:
			return config, fmt.Errorf("unknown syntax override %q (supported: block-start, block-end, var-start, var-end, comment-start, comment-end)", key)
		}
	}
	return config, nil
}

// buildEnvironment assembles a template environment from the global flags.
// Watch mode calls this once per render cycle so cached templates never go
// stale.
func buildEnvironment(cmd *cli.Command, log *zap.Logger) (*nativejinja.Environment, error) {
	env := nativejinja.NewEnvironment()
	env.SetLogger(log)
	if cmd.Bool("debug") {
		env.SetDebug(true)
	}
	if cmd.Bool("strict") {
		env.SetUndefinedBehavior(nativejinja.UndefinedStrict)
	}
	if cmd.Bool("text") {
		env.SetOutputMode(nativejinja.OutputText)
	}
	if fuel := cmd.Int("fuel"); fuel > 0 {
		env.SetFuel(uint64(fuel))
	}
	if pairs := cmd.StringSlice("syntax"); len(pairs) > 0 {
		config, err := parseSyntaxOverrides(pairs)
		if err != nil {
			return nil, err
		}
		env.SetSyntaxConfig(config)
	}
	if cmd.Bool("sprig") {
		env.LoadSprigFunctions()
	}
	return env, nil
}

func main() {

	// allow graceful shutdown on interrupt, watch mode relies on it and
	// render should stop scheduling new work when asked to quit
	ctx, stop := signal.NotifyContext(contextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	contextFlag := &cli.StringSliceFlag{Name: "context", Aliases: []string{"c"},
		Usage: "load render context from YAML or JSON `FILE`, later files win on key collisions; may be repeated"}
	rawFlag := &cli.BoolFlag{Name: "raw",
		Usage: "print the flattened text rendering instead of the typed representation"}

	app := &cli.Command{
		Name:            "njr",
		Usage:           "renders Jinja-style templates to native typed values",
		Version:         appVersion() + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging plus per-render tracing"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "log errors only"},
			&cli.BoolFlag{Name: "strict", Usage: "fail on undefined variables instead of propagating them"},
			&cli.BoolFlag{Name: "text", Usage: "join all template output as plain text instead of recovering native values"},
			&cli.IntFlag{Name: "fuel", Usage: "abort rendering after `N` evaluation steps (0 disables the limit)"},
			&cli.BoolFlag{Name: "sprig", Usage: "register the sprig function library as template functions"},
			&cli.StringSliceFlag{Name: "syntax", Aliases: []string{"s"},
				Usage: "override a delimiter `PAIR`, e.g. block-start='<%'; may be repeated"},
		},
		Commands: []*cli.Command{
			{
				Name:         "render",
				Usage:        "Renders template file(s) against the merged context",
				OnUsageError: usageErrorHandler,
				Action:       runRender,
				Flags: []cli.Flag{
					contextFlag,
					rawFlag,
					&cli.StringFlag{Name: "output", Aliases: []string{"o"},
						Usage: "write output to `FILE` instead of STDOUT (single template only)"},
				},
				ArgsUsage: "TEMPLATE...",
				CustomHelpTemplate: fmt.Sprintf(`%s
TEMPLATE:
    path to one or more template files, each renders independently against the
    same context. A single template prints its result alone; with several, each
    result line is prefixed with the template path. Without --raw the printed
    result is the typed representation, so strings are quoted and numbers,
    lists and maps keep their shape.

CONTEXT:
    --context files are decoded as YAML (JSON is valid YAML) and merged left
    to right, later files overriding earlier keys.
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "check",
				Usage:        "Parses template file(s) and reports syntax errors",
				OnUsageError: usageErrorHandler,
				Action:       runCheck,
				ArgsUsage:    "TEMPLATE...",
			},
			{
				Name:         "watch",
				Usage:        "Re-renders template file(s) whenever they or the context files change",
				OnUsageError: usageErrorHandler,
				Action:       runWatch,
				Flags:        []cli.Flag{contextFlag, rawFlag},
				ArgsUsage:    "TEMPLATE...",
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set the exit code, make
	// sure there are no other deferred functions after this one
	defer func() {
		stop()
		if err != nil {
			// the log may be either not set up yet (argument parsing) or
			// already closed, report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
