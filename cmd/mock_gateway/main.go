package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"github.com/slurm-web/console/pkg/base"
)

var (
	app = kingpin.New(
		base.MockGatewayAppName,
		"A mock Slurm-web gateway serving fixture clusters for tests and demos.",
	)
	webListenAddresses = app.Flag(
		"web.listen-address",
		"Addresses on which to expose the mock gateway.",
	).Default(":5011").Strings()
	webConfigFile = app.Flag(
		"web.config.file",
		"Path to configuration file that can enable TLS or authentication. See: https://github.com/prometheus/exporter-toolkit/blob/master/docs/web-configuration.md",
	).Default("").String()
	anonymous = app.Flag(
		"auth.disabled",
		"Disable authentication. Only anonymous sessions are allowed.",
	).Default("false").Bool()
	loginRateLimit = app.Flag(
		"login.rate-limit",
		"Number of login attempts allowed per client IP and minute. Zero disables limiting.",
	).Default("10").Int()
)

func main() {
	// Socket activation only available on Linux
	systemdSocket := func() *bool { b := false; return &b }() //nolint:nlreturn
	if runtime.GOOS == "linux" {
		systemdSocket = app.Flag(
			"web.systemd-socket",
			"Use systemd socket activation listeners instead of port listeners (Linux only).",
		).Bool()
	}

	// Setup logger config
	promslogConfig := &promslog.Config{}
	flag.AddFlags(app, promslogConfig)
	app.Version(version.Print(app.Name))
	app.UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')

	_, err := app.Parse(os.Args[1:])
	if err != nil {
		panic(err)
	}

	// Set logger here after properly configuring promlog
	logger := promslog.New(promslogConfig)

	logger.Info("Starting "+base.MockGatewayAppName, "version", version.Info())
	logger.Info("Operational information", "build_context", version.BuildContext())

	// If webConfigFile is set, get absolute path
	var webConfigFilePath string
	if *webConfigFile != "" {
		webConfigFilePath, err = filepath.Abs(*webConfigFile)
		if err != nil {
			logger.Error("Failed to get absolute path of web config file", "err", err)

			os.Exit(1)
		}
	}

	config := &Config{
		Logger: logger,
		Web: WebConfig{
			Addresses:        *webListenAddresses,
			WebSystemdSocket: *systemdSocket,
			WebConfigFile:    webConfigFilePath,
		},
		Anonymous:      *anonymous,
		LoginRateLimit: *loginRateLimit,
	}

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewMockGatewayServer(config)

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below.
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Failed to start server", "err", err)
		}
	}()

	// Listen for the interrupt signal.
	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.Info("Shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "err", err)
	}

	logger.Info("Server exiting")
}
