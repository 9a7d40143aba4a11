// Package base defines the names and variables that have global scope
// throughout which can be used in other subpackages
package base

// SlurmwebAppName is kingpin app name of the dashboard CLI.
const SlurmwebAppName = "slurmweb"

// SlurmwebAppHelp is the help text of the dashboard CLI.
const SlurmwebAppHelp = "Terminal dashboard for clusters, jobs, nodes and QOS served by a Slurm-web gateway."

// MockGatewayAppName is kingpin app name of the mock gateway.
const MockGatewayAppName = "mock_gateway"

// EnvPrefix prefixes environment variables read by the CLI flags.
const EnvPrefix = "SLURMWEB"

// Keys under which state is persisted in local storage.
const (
	TokenStorageKey    = "token"
	ClustersStorageKey = "availableClusters"
)

// Well known navigation paths.
const (
	LoginPath    = "/login"
	HomePath     = "/"
	ClustersPath = "/clusters"
)
