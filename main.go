package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/MrChuw/scrcpy-manager/adb"
	"github.com/MrChuw/scrcpy-manager/api"
	"github.com/MrChuw/scrcpy-manager/config"
	"github.com/MrChuw/scrcpy-manager/console"
	"github.com/MrChuw/scrcpy-manager/logging"
	"github.com/MrChuw/scrcpy-manager/scrcpy"
	"github.com/MrChuw/scrcpy-manager/service"
)

type options struct {
	port        int
	configDir   string
	configPath  string
	adbPath     string
	scrcpyPath  string
	usbTimeout  time.Duration
	listen      string
	historyPath string
	noHistory   bool
	logDir      string
	logLevel    string
	portSet     bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("scrcpy-manager", pflag.ContinueOnError)
	fs.IntVarP(&opts.port, "port", "p", 5555, "network port for the device transport")
	fs.StringVar(&opts.configDir, "config-dir", executableDir(), "directory holding config.yml and the device record")
	fs.StringVar(&opts.configPath, "config", "", "mirroring configuration file (default <config-dir>/config.yml)")
	fs.StringVar(&opts.adbPath, "adb", "adb", "adb binary")
	fs.StringVar(&opts.scrcpyPath, "scrcpy", scrcpy.DefaultPath, "scrcpy binary")
	fs.DurationVar(&opts.usbTimeout, "usb-timeout", 60*time.Second, "how long to wait for a USB device")
	fs.StringVar(&opts.listen, "listen", "", "address for the HTTP control API (disabled when empty)")
	fs.StringVar(&opts.historyPath, "history", "", "session history database (default <config-dir>/history.db)")
	fs.BoolVar(&opts.noHistory, "no-history", false, "do not record session history")
	fs.StringVar(&opts.logDir, "log-dir", "", "log directory (default <config-dir>/log)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.portSet = fs.Changed("port")
	if opts.configPath == "" {
		opts.configPath = filepath.Join(opts.configDir, config.DefaultFileName)
	}
	if opts.historyPath == "" {
		opts.historyPath = filepath.Join(opts.configDir, config.DefaultHistoryFileName)
	}
	if opts.logDir == "" {
		opts.logDir = filepath.Join(opts.configDir, "log")
	}
	return opts, nil
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	con, err := console.New(os.Stdin, os.Stdout, console.DefaultPrompt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		return 1
	}
	defer con.Close()

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:     opts.logDir,
		Level:   opts.logLevel,
		Console: con,
	})
	if err != nil {
		logger, _, _ = logging.Setup(logging.Options{Level: opts.logLevel, Console: con})
		logger.Warn().Err(err).Msg("File logging disabled")
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if !opts.portSet {
		if cfg, err := config.Load(opts.configPath); err == nil && cfg.Port > 0 {
			opts.port = cfg.Port
		}
	}

	client := adb.NewADBClient(opts.port, logger)
	client.ADBPath = opts.adbPath
	if err := client.LookPath(); err != nil {
		logger.Error().Err(err).Msg("Cannot start")
		return 1
	}
	if _, err := exec.LookPath(opts.scrcpyPath); err != nil {
		logger.Warn().Err(err).Str("scrcpy", opts.scrcpyPath).Msg("scrcpy not found, windows will fail to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks service.MultiSink
	var history api.HistoryReader
	if !opts.noHistory {
		db, err := config.InitDatabase(opts.historyPath)
		if err != nil {
			logger.Warn().Err(err).Msg("Session history disabled")
		} else {
			store := service.NewHistoryStore(db, logger)
			defer store.Close()
			sinks = append(sinks, store)
			history = store
		}
	}

	var hub *api.WebSocketHub
	if opts.listen != "" {
		hub = api.NewWebSocketHub(logger)
		sinks = append(sinks, hub)
	}

	var childOut io.Writer = io.Discard
	if logFile != nil {
		childOut = logFile
	}
	starter := service.ExecStarter{Path: opts.scrcpyPath, Stdout: childOut, Stderr: childOut}
	supervisor := service.NewSupervisor(starter, logger, sinks)

	registry := service.NewDeviceRegistry(opts.configDir)
	manager := service.NewConnectionManager(client, registry, opts.port, logger)
	manager.USBTimeout = opts.usbTimeout

	session := service.NewSession(service.SessionOptions{
		Connector:  manager,
		Transport:  client,
		Records:    registry,
		Supervisor: supervisor,
		Console:    con,
		ConfigPath: opts.configPath,
		Events:     sinks,
		Logger:     logger,
	})

	if hub != nil {
		go hub.Run(ctx)
		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(opts.listen, api.NewRouter(session, history, hub, logger), logger)
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Str("listen", opts.listen).Msg("Control API failed to start")
			return 1
		}
		defer shutdownServer(server, logger)
	}

	logger.Info().
		Int("port", opts.port).
		Str("config", opts.configPath).
		Msg("Starting scrcpy manager")
	if err := session.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Session ended")
		return 1
	}
	return 0
}

func shutdownServer(server *api.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Control API shutdown")
	}
}
