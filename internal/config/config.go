package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	ModeController = "controller"

	SourceKubernetes = "kubernetes"
	SourceFile       = "file"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is read once from the environment at startup.
type Config struct {
	Mode string `envconfig:"MODE" default:"controller"`

	IntervalSeconds int `envconfig:"INTERVAL" default:"10"`
	TimeoutSeconds  int `envconfig:"TIMEOUT" default:"2"`

	GeoIPEnabled bool   `envconfig:"GEOIP" default:"false"`
	GeoIPDBPath  string `envconfig:"GEOIP_DBPATH" default:"/data/GeoLite2-City.mmdb"`

	CorefilePath string `envconfig:"COREFILE_PATH" default:"/etc/coredns/Corefile"`
	ZoneDir      string `envconfig:"ZONEFILE_DIR" default:"/etc/coredns/zones"`
	TemplateDir  string `envconfig:"TEMPLATE_DIR"`
	ZoneValidate bool   `envconfig:"ZONE_VALIDATE" default:"true"`

	Source      string `envconfig:"SOURCE" default:"kubernetes"`
	SourceFile  string `envconfig:"SOURCE_FILE" default:"gslbconfigs.yaml"`
	CRDGroup    string `envconfig:"CRD_GROUP" default:"cyberun.cloud"`
	CRDVersion  string `envconfig:"CRD_VERSION" default:"v1"`
	CRDResource string `envconfig:"CRD_RESOURCE" default:"gslbconfigs"`

	MaxInFlightProbes int     `envconfig:"MAX_INFLIGHT_PROBES" default:"0"`
	ProbeRate         float64 `envconfig:"PROBE_RATE" default:"0"`
	ProbeBurst        int     `envconfig:"PROBE_BURST" default:"1"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads and validates the process configuration.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch {
	case c.IntervalSeconds <= 0:
		return fmt.Errorf("%w: INTERVAL must be positive, got %d", ErrInvalidConfig, c.IntervalSeconds)
	case c.TimeoutSeconds <= 0:
		return fmt.Errorf("%w: TIMEOUT must be positive, got %d", ErrInvalidConfig, c.TimeoutSeconds)
	case c.MaxInFlightProbes < 0:
		return fmt.Errorf("%w: MAX_INFLIGHT_PROBES cannot be negative", ErrInvalidConfig)
	case c.ProbeRate < 0:
		return fmt.Errorf("%w: PROBE_RATE cannot be negative", ErrInvalidConfig)
	case c.Source != SourceKubernetes && c.Source != SourceFile:
		return fmt.Errorf("%w: unknown SOURCE %q", ErrInvalidConfig, c.Source)
	case c.ZoneDir == "" || c.CorefilePath == "":
		return fmt.Errorf("%w: COREFILE_PATH and ZONEFILE_DIR are required", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) Resource() schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    c.CRDGroup,
		Version:  c.CRDVersion,
		Resource: c.CRDResource,
	}
}
