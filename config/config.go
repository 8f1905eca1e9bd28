// Package config loads the daemon configuration: an optional YAML
// file, then an optional .env file, then process environment variables,
// later sources winning. The result is one explicit struct constructed
// at startup and passed into the components that need it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"atlasops"
)

// Defaults mirror the intervals the automation has always used.
const (
	DefaultPollInterval  = 30 * time.Second
	DefaultCoolDown      = 5 * time.Minute
	DefaultSettlePause   = time.Minute
	DefaultCheckInterval = 30 * time.Second
)

// Duration is a time.Duration that unmarshals from YAML scalars like
// "30s" or "5m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Atlas is the Admin API connection and target cluster.
type Atlas struct {
	BaseURL     string `yaml:"base_url"`
	ProjectID   string `yaml:"project_id"`
	ClusterName string `yaml:"cluster_name"`
	PublicKey   string `yaml:"public_key"`
	PrivateKey  string `yaml:"private_key"`
}

// AWS is the EC2 connection. Credentials are optional; without them
// the default chain applies.
type AWS struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// SMTP is the outgoing mail account the monitor alerts through.
// All fields are required together; leaving them unset disables
// email alerts.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Password string `yaml:"password"`
}

func (s SMTP) Enabled() bool { return s != (SMTP{}) }

// Config is the full daemon configuration.
type Config struct {
	Atlas Atlas `yaml:"atlas"`
	AWS   AWS   `yaml:"aws"`
	SMTP  SMTP  `yaml:"smtp"`

	// Sizes are the two labels the scaler toggles between.
	Sizes atlasops.SizePair `yaml:"-"`
	SizeA string            `yaml:"size_a"`
	SizeB string            `yaml:"size_b"`

	Interconnects []atlasops.Interconnect `yaml:"interconnects"`

	// MongoURI is the connection string the monitor job pings.
	MongoURI string `yaml:"mongo_uri"`

	PollInterval Duration `yaml:"poll_interval"`
	CoolDown     Duration `yaml:"cool_down"`
	SettlePause  Duration `yaml:"settle_pause"`

	// CheckInterval paces the monitor's connectivity checks and bounds
	// each individual check.
	CheckInterval Duration `yaml:"check_interval"`

	// TransitionTimeout bounds each convergence wait. Zero means poll
	// forever; recovery is left to the outer retry loop.
	TransitionTimeout Duration `yaml:"transition_timeout"`

	// MarkerFile, when set, gates startup: the daemon waits for this
	// file to exist before running any job. Checked at startup only.
	MarkerFile string `yaml:"marker_file"`

	LogFile      string `yaml:"log_file"`
	LogLevel     string `yaml:"log_level"`
	HistoryDB    string `yaml:"history_db"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load builds the configuration. yamlPath may be empty. A .env file in
// the working directory is honored when present (it never overrides
// variables already set in the environment).
func Load(yamlPath string) (Config, error) {
	cfg := Config{
		SizeA:         "M10",
		SizeB:         "M20",
		PollInterval:  Duration(DefaultPollInterval),
		CoolDown:      Duration(DefaultCoolDown),
		SettlePause:   Duration(DefaultSettlePause),
		CheckInterval: Duration(DefaultCheckInterval),
		LogLevel:      "info",
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Missing .env is fine; env vars may come from the environment.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	cfg.Sizes = atlasops.SizePair{A: cfg.SizeA, B: cfg.SizeB}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Atlas.BaseURL, "ATLAS_BASE_URL")
	setString(&c.Atlas.ProjectID, "ATLAS_PROJECT_ID")
	setString(&c.Atlas.ClusterName, "ATLAS_CLUSTER_NAME")
	setString(&c.Atlas.PublicKey, "ATLAS_PUBLIC_KEY")
	setString(&c.Atlas.PrivateKey, "ATLAS_PRIVATE_KEY")
	setString(&c.SizeA, "ATLAS_SIZE_A")
	setString(&c.SizeB, "ATLAS_SIZE_B")

	setString(&c.AWS.Region, "AWS_REGION")
	setString(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	setString(&c.MongoURI, "MONGODB_URI")
	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.From, "FROM_EMAIL")
	setString(&c.SMTP.To, "TO_EMAIL")
	setString(&c.SMTP.Password, "EMAIL_PASSWORD")

	setString(&c.MarkerFile, "MARKER_FILE")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.HistoryDB, "HISTORY_DB")
	setString(&c.OTLPEndpoint, "OTLP_ENDPOINT")

	for _, d := range []struct {
		dst *Duration
		key string
	}{
		{&c.PollInterval, "POLL_INTERVAL"},
		{&c.CoolDown, "COOL_DOWN_INTERVAL"},
		{&c.SettlePause, "SETTLE_PAUSE"},
		{&c.TransitionTimeout, "TRANSITION_TIMEOUT"},
		{&c.CheckInterval, "CHECK_INTERVAL"},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = Duration(parsed)
		}
	}

	// VPC_IDS, SUBNET_IDS and SECURITY_GROUP_IDS are parallel
	// comma-separated lists.
	vpcs := splitList(os.Getenv("VPC_IDS"))
	subnets := splitList(os.Getenv("SUBNET_IDS"))
	groups := splitList(os.Getenv("SECURITY_GROUP_IDS"))
	if len(vpcs) > 0 {
		if len(subnets) != len(vpcs) || len(groups) != len(vpcs) {
			return fmt.Errorf("VPC_IDS, SUBNET_IDS and SECURITY_GROUP_IDS must have the same length (%d, %d, %d)",
				len(vpcs), len(subnets), len(groups))
		}
		c.Interconnects = make([]atlasops.Interconnect, len(vpcs))
		for i := range vpcs {
			c.Interconnects[i] = atlasops.Interconnect{
				VPCID:           vpcs[i],
				SubnetID:        subnets[i],
				SecurityGroupID: groups[i],
			}
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.Atlas.BaseURL == "":
		return fmt.Errorf("atlas base URL is required")
	case c.Atlas.ProjectID == "":
		return fmt.Errorf("atlas project id is required")
	case c.Atlas.PublicKey == "" || c.Atlas.PrivateKey == "":
		return fmt.Errorf("atlas API key pair is required")
	case c.SizeA == "" || c.SizeB == "" || c.SizeA == c.SizeB:
		return fmt.Errorf("size labels must be two distinct values, got %q and %q", c.SizeA, c.SizeB)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive")
	case c.CoolDown <= 0:
		return fmt.Errorf("cool-down interval must be positive")
	case c.CheckInterval <= 0:
		return fmt.Errorf("check interval must be positive")
	}
	if s := c.SMTP; s.Enabled() {
		if s.Host == "" || s.Port == "" || s.From == "" || s.To == "" || s.Password == "" {
			return fmt.Errorf("smtp configuration is incomplete: host, port, from, to and password are all required")
		}
	}
	for i, ic := range c.Interconnects {
		if ic.VPCID == "" || ic.SubnetID == "" || ic.SecurityGroupID == "" {
			return fmt.Errorf("interconnect %d is incomplete: %+v", i, ic)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
