package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/input"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

// dryRunHistory bounds the events a dry run keeps in memory.
const dryRunHistory = 1000

type runOptions struct {
	dryRun    bool
	addr      string
	noTray    bool
	noServer  bool
	pluginDir string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the camera pipeline, dashboard and tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}
			if opts.pluginDir != "" {
				cfg.Plugins.Dir = opts.pluginDir
			}
			return run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log input instead of sending it to the desktop")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "dashboard listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "run without the system tray")
	cmd.Flags().BoolVar(&opts.noServer, "no-server", false, "run without the dashboard")
	cmd.Flags().StringVar(&opts.pluginDir, "plugins", "", "plugin directory (overrides plugins.dir)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts runOptions) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	if f := cfg.File(); f != "" {
		log.Info().Str("file", f).Msg("Loaded configuration")
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var appOpts []app.Option
	if opts.dryRun {
		rec := input.NewRecorder(log)
		rec.SetLimit(dryRunHistory)
		appOpts = append(appOpts, app.WithActuator(rec))
		log.Warn().Msg("Dry run: input is logged, not sent")
	}

	a := app.New(cfg.App(log, st), appOpts...)
	defer a.Close()

	if err := a.DiscoverPlugins(); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Plugins.Dir).Msg("Plugin discovery failed")
	} else if mgr := a.PluginManager(); mgr != nil {
		log.Info().Int("count", len(mgr.List())).Msg("Plugins discovered")
	}

	if err := a.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if !opts.noServer {
		staticDir := cfg.Server.StaticDir
		if staticDir == "" {
			staticDir = findWebDir()
		}
		if staticDir != "" {
			log.Info().Str("dir", staticDir).Msg("Serving static files")
		}
		srv := server.New(server.Config{StaticDir: staticDir, Store: st, App: a, Log: log})
		g.Go(func() error {
			if err := srv.Run(gctx, cfg.Server.Addr); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}

	if opts.noTray {
		<-gctx.Done()
	} else {
		runTray(gctx, stop, a, dashboardURL(cfg.Server.Addr), log)
	}
	stop()

	err = g.Wait()
	log.Info().Msg("Shutting down")
	return err
}

// runTray shows the tray on the calling goroutine until the user quits or
// ctx ends.
func runTray(ctx context.Context, quit func(), a *app.App, url string, log zerolog.Logger) {
	tr := tray.New(a.IsEnabled(), log)
	tr.OnToggle(a.SetEnabled)
	tr.OnDashboard(func() { openBrowser(url, log) })
	tr.OnQuit(quit)

	unsubscribe := a.Subscribe(func(s app.Snapshot) {
		tr.SetState(s.Mode, s.Action, s.Direction)
		tr.SetEnabled(s.Enabled)
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		tr.Quit()
	}()
	tr.Run()
}

func dashboardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func openBrowser(url string, log zerolog.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		log.Warn().Str("os", runtime.GOOS).Msg("Cannot open a browser on this platform")
		return
	}
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to open browser")
	}
}

// findWebDir looks for dashboard assets in web, ../web, ../../web and
// ~/.mudra/web. It returns an empty string when none exists.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home := filepath.Join(config.Dir(), "web")
	if info, err := os.Stat(home); err == nil && info.IsDir() {
		return home
	}
	return ""
}
