package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// watchSettle is how long the watcher waits after the last change before
// re-rendering, coalescing the event bursts editors produce on save.
const watchSettle = 250 * time.Millisecond

func runWatch(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := envFromContext(ctx).Log.Named("watch")

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("no template has been specified")
	}
	contextFiles := cmd.StringSlice("context")
	raw := cmd.Bool("raw")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to start watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the parent directories and
	// filter events down to the files of interest.
	watched := make(map[string]bool, len(paths)+len(contextFiles))
	dirs := make(map[string]bool)
	for _, p := range append(append([]string{}, paths...), contextFiles...) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("unable to watch %q: %w", dir, err)
		}
	}
	log.Info("watching for changes",
		zap.Int("templates", len(paths)), zap.Int("context_files", len(contextFiles)))

	rerender := func() {
		data, err := loadContext(contextFiles)
		if err != nil {
			log.Error("context reload failed", zap.Error(err))
			return
		}
		// a fresh environment per cycle, cached templates must not go stale
		env, err := buildEnvironment(cmd, log)
		if err != nil {
			log.Error("environment rebuild failed", zap.Error(err))
			return
		}
		for _, res := range renderTemplates(ctx, env, paths, data, raw, log) {
			if res.err != nil {
				log.Error("render failed", zap.String("template", res.path), zap.Error(res.err))
				continue
			}
			printResult(res, len(paths) > 1)
		}
	}
	rerender()

	settle := time.NewTimer(watchSettle)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			log.Debug("change detected", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			if !settle.Stop() {
				select {
				case <-settle.C:
				default:
				}
			}
			settle.Reset(watchSettle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))

		case <-settle.C:
			rerender()
		}
	}
}
