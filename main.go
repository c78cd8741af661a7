// Command islebake bakes island scene scripts into meshes, collision
// hulls and navigation summaries.
//
//	islebake [-config settings.yaml] [-log-level debug] [-json] scene.lisp
//	islebake -watch [-preview] scene.lisp
//
// With -watch the script is reloaded on every save and the islands whose
// shapes changed are baked again. With -preview as well, saves only
// refresh the realtime previews.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bep/debounce"
	"github.com/charmbracelet/log"
	"github.com/chazu/islebake/pkg/config"
	"github.com/chazu/islebake/pkg/engine"
	"github.com/chazu/islebake/pkg/logging"
	"github.com/fsnotify/fsnotify"
)

func main() {
	var (
		cfgPath  string
		level    string
		watch    bool
		preview  bool
		asJSON   bool
		groupArg string
	)
	flag.StringVar(&cfgPath, "config", "", "path to a build settings YAML file")
	flag.StringVar(&level, "log-level", "", "log level (debug, info, warn, error); overrides the settings file")
	flag.BoolVar(&watch, "watch", false, "reload and rebake when the script changes")
	flag.BoolVar(&preview, "preview", false, "with -watch, refresh previews instead of baking")
	flag.BoolVar(&asJSON, "json", false, "print results as JSON")
	flag.StringVar(&groupArg, "group", "", "bake only this island group")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: islebake [flags] scene.lisp\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	script := flag.Arg(0)

	settings := config.Default()
	if cfgPath != "" {
		var err error
		if settings, err = config.Load(cfgPath); err != nil {
			logging.Default().Fatal("load settings", "err", err)
		}
	}
	if level == "" {
		level = settings.LogLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		logging.Default().Fatal("log level", "err", err)
	}
	logger := logging.New(os.Stderr, lvl)

	app := NewApp(settings, logger)
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	source, err := os.ReadFile(script)
	if err != nil {
		logger.Fatal("read script", "err", err)
	}
	var res BakeResult
	if groupArg == "" {
		res = app.Bake(ctx, string(source))
	} else {
		res = bakeGroup(ctx, app, string(source), groupArg)
	}
	report(os.Stdout, res, asJSON)

	if !watch {
		if res.Failed() {
			os.Exit(1)
		}
		return
	}
	if err := watchLoop(ctx, app, script, settings, preview, asJSON, logger); err != nil {
		logger.Fatal("watch", "err", err)
	}
}

// bakeGroup loads source and bakes one island group of it.
func bakeGroup(ctx context.Context, app *App, source, group string) BakeResult {
	evalErrs, err := app.Load(source)
	if err != nil {
		evalErrs = append(evalErrs, engine.EvalError{Message: err.Error()})
	}
	if len(evalErrs) > 0 {
		return BakeResult{Errors: evalErrs}
	}
	return app.Group(ctx, group)
}

// watchLoop reloads script on save until ctx is done. File events arrive
// on the watcher's goroutine; all App calls stay on this one.
func watchLoop(ctx context.Context, app *App, script string, settings *config.Settings, preview, asJSON bool, logger *log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(script)); err != nil {
		return err
	}
	target := filepath.Clean(script)

	reload := make(chan struct{}, 1)
	debounced := debounce.New(settings.Realtime.Idle.Duration())
	poll := time.NewTicker(max(settings.Realtime.Poll.Duration(), time.Millisecond))
	defer poll.Stop()

	logger.Info("watching", "script", script, "preview", preview)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			debounced(func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher", "err", err)

		case <-reload:
			source, err := os.ReadFile(script)
			if err != nil {
				logger.Error("read script", "err", err)
				continue
			}
			evalErrs, err := app.Load(string(source))
			if err != nil || len(evalErrs) > 0 {
				report(os.Stdout, BakeResult{Errors: evalErrs}, asJSON)
				if err != nil {
					logger.Error("reload", "err", err)
				}
				continue
			}
			if !preview {
				report(os.Stdout, app.BakeStale(ctx), asJSON)
			}

		case <-poll.C:
			app.Queue().Drain()
			if preview {
				app.Tick(ctx)
			}
		}
	}
}

// report prints res as JSON or as a table.
func report(w io.Writer, res BakeResult, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e.Error())
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if len(res.Islands) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISLAND\tGROUP\tSHAPES\tVOLUME\tMASS\tTRIS\tHULLS\tRADIUS\tSTATUS")
	for _, is := range res.Islands {
		status := "ok"
		switch {
		case is.Error != "":
			status = is.Error
		case is.Empty:
			status = "empty"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.1f\t%d\t%d\t%.2f\t%s\n",
			is.Name, is.Group, is.Shapes, is.Volume, is.Mass, is.Triangles, is.Hulls, is.Radius, status)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d islands in %s\n", len(res.Islands), res.Elapsed.Round(time.Millisecond))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
