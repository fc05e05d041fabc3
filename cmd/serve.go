package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hostbridge/pkg/bridge"
	"hostbridge/pkg/bus"
	"hostbridge/pkg/config"
	"hostbridge/pkg/content"
	"hostbridge/pkg/devhost"
	"hostbridge/pkg/dispatch"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/navigation"
	"hostbridge/pkg/ui/console"
)

const disposeTimeout = 5 * time.Second

type serveOptions struct {
	contentRoot string
	hostPage    string
	port        int
	console     bool
	watch       bool
	logFile     string
}

var serveFlags serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the app through the loopback dev host",
	Long: `Starts the bridge against the loopback dev host: the app scheme is served over
HTTP, pages connect back over a websocket, and script messages are shown in
the log or in the interactive console.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := applyServeOptions(cfg, serveFlags); err != nil {
			fmt.Printf("invalid flags: %v\n", err)
			os.Exit(1)
		}

		writer, closeLog, err := logWriter(serveFlags)
		if err != nil {
			fmt.Printf("failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer closeLog()

		appLogger, err := logger.NewWithWriter(cfg.Logging, writer)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(appLogger)
		log := logger.Component(appLogger, "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runServe(runCtx, stop, cfg, serveFlags.console, appLogger); err != nil {
			log.Error("Bridge failed", "error", err)

			var setupErr *bridge.SetupError
			if errors.As(err, &setupErr) {
				fmt.Printf("bridge setup failed at %q: %v\n", setupErr.Step, setupErr.Err)
			}
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.contentRoot, "content-root", "", "directory the app scheme serves (default from config)")
	serveCmd.Flags().StringVar(&serveFlags.hostPage, "host-page", "", "document served for the scheme root")
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "dev host port")
	serveCmd.Flags().BoolVar(&serveFlags.console, "console", false, "show the interactive message console")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", false, "reload the page when files under the content root change")
	serveCmd.Flags().StringVar(&serveFlags.logFile, "log-file", "", "write logs to this file (defaults to a temp file with --console)")
}

// applyServeOptions layers command line flags over the loaded config.
func applyServeOptions(cfg *config.Config, opts serveOptions) error {
	if value := strings.TrimSpace(opts.contentRoot); value != "" {
		cfg.App.ContentRoot = value
	}
	if value := strings.TrimSpace(opts.hostPage); value != "" {
		cfg.App.HostPage = value
	}
	if opts.port != 0 {
		cfg.DevHost.Port = opts.port
	}
	if opts.watch {
		cfg.Watch.Enabled = true
	}

	return cfg.Validate()
}

// logWriter keeps logs off the terminal while the console owns it.
func logWriter(opts serveOptions) (io.Writer, func(), error) {
	path := strings.TrimSpace(opts.logFile)
	if path == "" && opts.console {
		path = filepath.Join(os.TempDir(), "hostbridge.log")
	}
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	if opts.console {
		fmt.Printf("logging to %s\n", path)
	}

	return file, func() { _ = file.Close() }, nil
}

// runServe starts the UI loop, the bridge and its surroundings, and tears
// them down when ctx ends. The bridge is disposed before the loop stops so
// its hooks are released on the UI thread. stop ends the run early, e.g.
// when the console quits.
func runServe(ctx context.Context, stop context.CancelFunc, cfg *config.Config, withConsole bool, appLogger *slog.Logger) error {
	log := logger.Component(appLogger, "cmd.serve")

	provider, err := content.NewDirProvider(cfg.App.ContentRoot)
	if err != nil {
		return fmt.Errorf("open content root: %w", err)
	}

	loop := dispatch.NewLoop(appLogger)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	mb := bus.NewMessageBus()
	defer mb.Close()

	var manager *bridge.Manager
	server, err := devhost.New(devhost.Options{
		App:        cfg.App,
		Listen:     cfg.DevHost,
		Dispatcher: loop,
		Ready:      func() bool { return manager.State() == bridge.StateRunning },
		Bus:        mb,
		Log:        appLogger,
	})
	if err != nil {
		return err
	}

	manager, err = bridge.New(bridge.Options{
		App:        cfg.App,
		View:       server.View(),
		Dispatcher: loop,
		Provider:   provider,
		Framework:  bridge.NewBusFramework(mb, appLogger),
		Opener:     navigation.NewSystemOpener(appLogger),
		Bus:        mb,
		Log:        appLogger,
	})
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		disposeCtx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()
		if err := manager.Dispose(disposeCtx); err != nil {
			log.Warn("Bridge dispose returned error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Watch.Enabled {
		watcher := content.NewWatcher(provider.Root(), time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond, appLogger)
		g.Go(func() error {
			return watcher.Run(gctx, func(changed []string) {
				log.Info("Content changed, reloading", "files", changed)
				if err := manager.Reload(); err != nil {
					log.Warn("Reload failed", "error", err)
				}
			})
		})
	}

	if withConsole {
		g.Go(func() error {
			defer stop()
			return console.Run(gctx, mb, console.Options{BaseURI: cfg.App.BaseURI(), Reload: manager.Reload})
		})
	} else {
		g.Go(func() error {
			logInbound(gctx, mb, log)
			return nil
		})
	}

	log.Info("Serving app", "url", "http://"+server.Addr()+"/", "content_root", provider.Root(), "base_uri", cfg.App.BaseURI())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// logInbound drains script messages when no console is attached.
func logInbound(ctx context.Context, mb *bus.MessageBus, log *slog.Logger) {
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return
		}

		log.Info("Script message", "origin", msg.Origin, "content", msg.Content)
	}
}
