package common

import (
	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
)

// DefaultGatewayWebConfig is the default HTTP config of the Slurm-web
// gateway. Response caching is disabled unless cache_ttl is set.
var DefaultGatewayWebConfig = GatewayWebConfig{
	HTTPClientConfig: config_util.DefaultHTTPClientConfig,
}

// GatewayWebConfig makes HTTP config of the Slurm-web gateway.
type GatewayWebConfig struct {
	URL              string                       `yaml:"url"`
	CacheTTL         model.Duration               `yaml:"cache_ttl"`
	HTTPClientConfig config_util.HTTPClientConfig `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (w *GatewayWebConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	// Set a default config
	*w = DefaultGatewayWebConfig

	type plain GatewayWebConfig

	if err := unmarshal((*plain)(w)); err != nil {
		return err
	}

	// The UnmarshalYAML method of HTTPClientConfig is not being called because it's not a pointer.
	// We cannot make it a pointer as the parser panics for inlined pointer structs.
	// Thus we just do its validation here.
	return w.HTTPClientConfig.Validate()
}
