package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"nativejinja"
	"nativejinja/value"
)

// loadContext decodes every --context file and merges them into a single
// mapping. Later files win on key collisions.
func loadContext(files []string) (value.Value, error) {
	if len(files) == 0 {
		return value.FromDict(value.NewDict()), nil
	}
	sources := make([]value.Value, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return value.Value{}, fmt.Errorf("unable to read context file: %w", err)
		}
		var decoded map[string]any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return value.Value{}, fmt.Errorf("unable to decode context file %q: %w", name, err)
		}
		sources = append(sources, value.FromAny(decoded))
	}
	return value.MergeMaps(sources...), nil
}

type renderResult struct {
	path string
	text string
	err  error
}

// renderTemplates renders every template concurrently and returns results in
// argument order. Failures are collected per template rather than aborting
// the batch, so the group error is ignored.
func renderTemplates(ctx context.Context, env *nativejinja.Environment, paths []string, data value.Value, raw bool, log *zap.Logger) []renderResult {
	results := make([]renderResult, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		eg.Go(func() error {
			results[i] = renderOne(egCtx, env, path, data, raw, log)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func renderOne(ctx context.Context, env *nativejinja.Environment, path string, data value.Value, raw bool, log *zap.Logger) renderResult {
	renderID := uuid.NewString()[:8]
	start := time.Now()

	source, err := os.ReadFile(path)
	if err != nil {
		return renderResult{path: path, err: fmt.Errorf("unable to read template: %w", err)}
	}
	tmpl, err := env.TemplateFromNamedString(path, string(source))
	if err != nil {
		return renderResult{path: path, err: err}
	}

	var text string
	if raw {
		text, err = tmpl.RenderString(data)
	} else {
		var result nativejinja.Value
		result, err = tmpl.RenderValue(ctx, data)
		if err == nil {
			text = result.Repr()
			log.Debug("render completed",
				zap.String("render_id", renderID),
				zap.String("template", path),
				zap.Stringer("kind", result.Kind()),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
	if err != nil {
		return renderResult{path: path, err: err}
	}
	if raw {
		log.Debug("render completed",
			zap.String("render_id", renderID),
			zap.String("template", path),
			zap.Int("bytes", len(text)),
			zap.Duration("elapsed", time.Since(start)))
	}
	return renderResult{path: path, text: text}
}

// renderToFile handles the --output case, a single template rendered
// straight into the destination file.
func renderToFile(ctx context.Context, env *nativejinja.Environment, path string, data value.Value, output string, raw bool, log *zap.Logger) (err error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read template: %w", err)
	}
	tmpl, err := env.TemplateFromNamedString(path, string(source))
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if raw {
		if err := tmpl.RenderTo(f, data); err != nil {
			return err
		}
	} else {
		result, rerr := tmpl.RenderValue(ctx, data)
		if rerr != nil {
			return rerr
		}
		if _, werr := io.WriteString(f, result.Repr()); werr != nil {
			return fmt.Errorf("unable to write output: %w", werr)
		}
	}
	log.Info("output written", zap.String("template", path), zap.String("file", output))
	return nil
}

func printResult(res renderResult, prefixed bool) {
	if prefixed {
		fmt.Printf("%s: %s\n", res.path, res.text)
		return
	}
	text := res.text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	fmt.Print(text)
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := envFromContext(ctx).Log.Named("render")

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("no template has been specified")
	}
	output := cmd.String("output")
	if output != "" && len(paths) > 1 {
		return errors.New("--output can only be combined with a single template")
	}

	data, err := loadContext(cmd.StringSlice("context"))
	if err != nil {
		return err
	}
	env, err := buildEnvironment(cmd, log)
	if err != nil {
		return err
	}

	raw := cmd.Bool("raw")
	if output != "" {
		return renderToFile(ctx, env, paths[0], data, output, raw, log)
	}

	var failed error
	for _, res := range renderTemplates(ctx, env, paths, data, raw, log) {
		if res.err != nil {
			failed = multierr.Append(failed, fmt.Errorf("%s: %w", res.path, res.err))
			continue
		}
		printResult(res, len(paths) > 1)
	}
	return failed
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := envFromContext(ctx).Log.Named("check")

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("no template has been specified")
	}
	env, err := buildEnvironment(cmd, log)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err == nil {
			_, err = env.TemplateFromNamedString(path, string(source))
		}
		if err != nil {
			failed++
			// the %+v form includes the offending source line
			fmt.Fprintf(os.Stderr, "%+v\n", err)
			continue
		}
		fmt.Printf("%s: syntax ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d template(s) failed validation", failed, len(paths))
	}
	log.Debug("all templates validated", zap.Int("count", len(paths)))
	return nil
}
