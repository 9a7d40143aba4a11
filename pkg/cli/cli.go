// Package cli implements the slurmweb CLI app
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"github.com/slurm-web/console/internal/common"
	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/dashboard"
	"github.com/slurm-web/console/pkg/gateway"
	"github.com/slurm-web/console/pkg/storage"
	"github.com/slurm-web/console/pkg/stores"
)

// Custom errors.
var (
	ErrMissingGatewayURL = errors.New("gateway URL missing. Set it in config file or with --gateway.url")
	ErrConfigNotFound    = errors.New("config file not found")
)

// Locations where config file is looked up when not set explicitly.
var configPaths = []string{
	"/etc/slurmweb",
}

// SlurmwebConfig contains the slurmweb configuration.
type SlurmwebConfig struct {
	Gateway common.GatewayWebConfig `yaml:"gateway"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *SlurmwebConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	// Set a default config
	*c = SlurmwebConfig{Gateway: common.DefaultGatewayWebConfig}

	type plain SlurmwebConfig

	return unmarshal((*plain)(c))
}

// SetDirectory joins any relative file paths with dir.
func (c *SlurmwebConfig) SetDirectory(dir string) {
	c.Gateway.HTTPClientConfig.SetDirectory(dir)

	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(dir, c.Storage.Path)
	}
}

// Slurmweb represents the `slurmweb` cli.
type Slurmweb struct {
	appName string
	App     *kingpin.Application
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewSlurmweb returns a new Slurmweb instance.
func NewSlurmweb() (*Slurmweb, error) {
	return &Slurmweb{
		appName: base.SlurmwebAppName,
		App:     kingpin.New(base.SlurmwebAppName, base.SlurmwebAppHelp),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}, nil
}

// options of a command invocation.
type options struct {
	format    outputFormat
	cluster   string
	user      string
	anonymous bool
	name      string
	jobID     int64
	states    []string
	users     []string
	accounts  []string
	sort      string
	page      int
	query     string
	share     bool
}

// Main is the entry point of the `slurmweb` command.
func (s *Slurmweb) Main() error {
	var opts options

	var (
		configFile = s.App.Flag(
			"config.file",
			"Configuration file path. By default, config.yml or slurmweb.yml is searched in /etc/slurmweb and user config directory.",
		).Envar(base.EnvPrefix + "_CONFIG_FILE").Default("").String()
		gatewayURL = s.App.Flag(
			"gateway.url",
			"URL of Slurm-web gateway. Overrides the value of config file.",
		).Envar(base.EnvPrefix + "_GATEWAY_URL").Default("").String()
		storagePath = s.App.Flag(
			"storage.path",
			"Path to the file keeping session state between invocations. An empty value keeps state in memory only.",
		).Envar(base.EnvPrefix + "_STORAGE_PATH").Default(defaultStoragePath()).String()
		timeout = s.App.Flag(
			"gateway.timeout",
			"Timeout of a command, including all gateway requests.",
		).Default("30s").Duration()
		csvOut  = s.App.Flag("csv", "Produce CSV output (default: false).").Default("false").Bool()
		htmlOut = s.App.Flag("html", "Produce HTML output (default: false).").Default("false").Bool()
		mdOut   = s.App.Flag("markdown", "Produce markdown output (default: false).").Default("false").Bool()
	)

	loginCmd := s.App.Command("login", "Open a session on the gateway.")
	loginCmd.Flag("user", "Login of the user. Prompted when not set.").StringVar(&opts.user)
	loginCmd.Flag("anonymous", "Open an anonymous session when gateway authentication is disabled.").BoolVar(&opts.anonymous)

	logoutCmd := s.App.Command("logout", "Close the current session.")
	clustersCmd := s.App.Command("clusters", "List clusters available to the current user.")
	usersCmd := s.App.Command("users", "List users known by the gateway.")

	statsCmd := s.App.Command("stats", "Show statistics of a cluster.")
	statsCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	jobsCmd := s.App.Command("jobs", "List jobs of a cluster.")
	jobsCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)
	jobsCmd.Flag("state", "Comma separated list of job states to select.").StringsVar(&opts.states)
	jobsCmd.Flag("user", "Comma separated list of users to select.").StringsVar(&opts.users)
	jobsCmd.Flag("account", "Comma separated list of accounts to select.").StringsVar(&opts.accounts)
	jobsCmd.Flag("sort", "Sort key.").Default(stores.SortID).
		EnumVar(&opts.sort, stores.SortID, stores.SortUser, stores.SortState, stores.SortAccount, stores.SortPartition)
	jobsCmd.Flag("page", "Page of jobs to display.").Default("1").IntVar(&opts.page)
	jobsCmd.Flag("query", "Query parameters of a shared jobs view. Overrides filters, sort and page.").StringVar(&opts.query)
	jobsCmd.Flag("share", "Print query parameters of the jobs view instead of jobs.").BoolVar(&opts.share)

	jobCmd := s.App.Command("job", "Show details of a job.")
	jobCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)
	jobCmd.Arg("id", "Job ID.").Required().Int64Var(&opts.jobID)

	nodesCmd := s.App.Command("nodes", "List nodes of a cluster.")
	nodesCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	nodeCmd := s.App.Command("node", "Show details of a node.")
	nodeCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)
	nodeCmd.Arg("name", "Node name.").Required().StringVar(&opts.name)

	partitionsCmd := s.App.Command("partitions", "List partitions of a cluster.")
	partitionsCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	qosCmd := s.App.Command("qos", "List QOS of a cluster.")
	qosCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	reservationsCmd := s.App.Command("reservations", "List reservations of a cluster.")
	reservationsCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	accountsCmd := s.App.Command("accounts", "List accounts of a cluster.")
	accountsCmd.Arg("cluster", "Cluster name.").Required().StringVar(&opts.cluster)

	promslogConfig := &promslog.Config{}
	flag.AddFlags(s.App, promslogConfig)
	s.App.Version(version.Print(s.appName))
	s.App.UsageWriter(s.Stdout)
	s.App.HelpFlag.Short('h')

	cmd, err := s.App.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to parse CLI flags: %w", err)
	}

	promslogConfig.Writer = s.Stderr
	logger := promslog.New(promslogConfig)

	switch {
	case *htmlOut:
		opts.format = formatHTML
	case *csvOut:
		opts.format = formatCSV
	case *mdOut:
		opts.format = formatMarkdown
	}

	config, err := readConfig(*configFile)
	if err != nil {
		return err
	}

	if *gatewayURL != "" {
		config.Gateway.URL = *gatewayURL
	}

	if config.Gateway.URL == "" {
		return ErrMissingGatewayURL
	}

	// Flag takes precedence over config only when set explicitly
	if config.Storage.Path == "" || *storagePath != defaultStoragePath() {
		config.Storage.Path = *storagePath
	}

	store, err := openStorage(config.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := dashboard.New(dashboard.Config{
		Gateway: gateway.Config{
			URL:              config.Gateway.URL,
			HTTPClientConfig: config.Gateway.HTTPClientConfig,
			CacheTTL:         time.Duration(config.Gateway.CacheTTL),
		},
		Storage: store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to setup dashboard: %w", err)
	}
	defer app.Close()

	// Report notifications as they are emitted
	app.Runtime.Subscribe(func(e stores.NotificationEvent) {
		if !e.Removed {
			fmt.Fprintf(s.Stderr, "%s: %s\n", e.Notification.Type, e.Notification.Message)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	// Interrupting the command leaves the view
	leave := context.AfterFunc(ctx, app.LeaveView)
	defer leave()

	v := &view{app: app, opts: opts, stdin: s.Stdin, stdout: s.Stdout, stderr: s.Stderr}

	switch cmd {
	case loginCmd.FullCommand():
		err = v.login(ctx)
	case logoutCmd.FullCommand():
		v.app.Logout()
	case clustersCmd.FullCommand():
		err = v.clusters(ctx)
	case usersCmd.FullCommand():
		err = v.users(ctx)
	case statsCmd.FullCommand():
		err = v.stats(ctx)
	case jobsCmd.FullCommand():
		err = v.jobs(ctx)
	case jobCmd.FullCommand():
		err = v.job(ctx)
	case nodesCmd.FullCommand():
		err = v.nodes(ctx)
	case nodeCmd.FullCommand():
		err = v.node(ctx)
	case partitionsCmd.FullCommand():
		err = v.partitions(ctx)
	case qosCmd.FullCommand():
		err = v.qos(ctx)
	case reservationsCmd.FullCommand():
		err = v.reservations(ctx)
	case accountsCmd.FullCommand():
		err = v.accounts(ctx)
	}

	return describeError(err)
}

// readConfig returns config from configFile or from the first config file
// found in config paths. Default config is returned when none is found.
func readConfig(configFile string) (*SlurmwebConfig, error) {
	if configFile != "" {
		configFilePath, err := filepath.Abs(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path of config file: %w", err)
		}

		if _, err := os.Stat(configFilePath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configFilePath)
		}

		config, err := common.MakeConfig[SlurmwebConfig](configFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		config.SetDirectory(filepath.Dir(configFilePath))

		return config, nil
	}

	paths := configPaths
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(userConfigDir, base.SlurmwebAppName))
	}

	// Look for config.yml or config.yaml or slurmweb.yml or slurmweb.yaml files
	for _, configPath := range paths {
		for _, file := range []string{"config.yml", "config.yaml", "slurmweb.yml", "slurmweb.yaml"} {
			path := filepath.Join(configPath, file)
			if _, err := os.Stat(path); err == nil {
				return readConfig(path)
			}
		}
	}

	return &SlurmwebConfig{Gateway: common.DefaultGatewayWebConfig}, nil
}

func defaultStoragePath() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(userConfigDir, base.SlurmwebAppName, "state.db")
}

func openStorage(path string, logger *slog.Logger) (storage.Storage, error) {
	if path == "" {
		logger.Debug("Session state is kept in memory only")

		return storage.NewMemory(), nil
	}

	s, err := storage.NewSQLite(path, logger.With("subsystem", "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return s, nil
}

// describeError returns err with a user facing explanation.
func describeError(err error) error {
	if err == nil {
		return nil
	}

	var gwErr *gateway.Error

	switch {
	case errors.Is(err, dashboard.ErrAuthenticationRequired):
		return fmt.Errorf("%w. Run %s login first", err, base.SlurmwebAppName)
	case errors.Is(err, gateway.ErrAborted):
		return errors.New("command interrupted")
	case errors.As(err, &gwErr) && gwErr.Kind == gateway.KindAuthentication:
		return fmt.Errorf("session expired or invalid credentials: %w", err)
	case errors.As(err, &gwErr) && gwErr.Kind == gateway.KindPermission:
		return fmt.Errorf("forbidden. It is likely that the user is not allowed to view this resource: %w", err)
	default:
		return err
	}
}

func splitFlags(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, common.SplitString(v, ",")...)
	}

	return parts
}
