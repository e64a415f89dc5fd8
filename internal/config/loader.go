package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

const (
	DefaultBackupDirectory = "_db_backups"
	DefaultKeep            = 4
	EnvPrefix              = "DOCKDUMP"
)

// DefaultCompressors is the compressor preference order used when none is configured.
var DefaultCompressors = []string{"zstd", "gzip", "zip"}

// Config is the immutable run configuration. It is built once at startup and
// passed by value to every component.
type Config struct {
	Containers ContainersConfig `mapstructure:"containers" yaml:"containers"`
	Backup     BackupConfig     `mapstructure:"backup"     yaml:"backup"`
	Retention  RetentionConfig  `mapstructure:"retention"  yaml:"retention"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"  yaml:"heartbeat"`
	Vault      VaultConfig      `mapstructure:"vault"      yaml:"vault"`
	Docker     DockerConfig     `mapstructure:"docker"     yaml:"docker"`
	Verbose    bool             `mapstructure:"verbose"    yaml:"verbose"`
}

// ContainersConfig names the containers that must be backed up and the ones
// that are present but intentionally ignored.
type ContainersConfig struct {
	Required []string `mapstructure:"required" yaml:"required"`
	Skip     []string `mapstructure:"skip"     yaml:"skip,omitempty"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Directory   string        `mapstructure:"directory"   yaml:"directory"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout,omitempty"`
	Compressors []string      `mapstructure:"compressors" yaml:"compressors,omitempty"`
	Report      bool          `mapstructure:"report"      yaml:"report"`
}

// RetentionConfig specifies how many archives to keep per container.
type RetentionConfig struct {
	Keep int `mapstructure:"keep" yaml:"keep"`
}

// HeartbeatConfig lists the monitoring endpoints pinged after a run.
type HeartbeatConfig struct {
	Success []string      `mapstructure:"success" yaml:"success,omitempty"`
	Failure []string      `mapstructure:"failure" yaml:"failure,omitempty"`
	Always  []string      `mapstructure:"always"  yaml:"always,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Retries int           `mapstructure:"retries" yaml:"retries,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault. Vault is only
// contacted when HeartbeatPath is set.
type VaultConfig struct {
	Address       string `mapstructure:"address"        yaml:"address,omitempty"`
	RoleID        string `mapstructure:"role_id"        yaml:"role_id,omitempty"`
	RoleName      string `mapstructure:"role_name"      yaml:"role_name,omitempty"`
	HeartbeatPath string `mapstructure:"heartbeat_path" yaml:"heartbeat_path,omitempty"`
}

// DockerConfig overrides how the container runtime is reached.
type DockerConfig struct {
	Host string `mapstructure:"host" yaml:"host,omitempty"`
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"container":   "containers.required",
	"skip":        "containers.skip",
	"dir":         "backup.directory",
	"timeout":     "backup.timeout",
	"compressor":  "backup.compressors",
	"keep":        "retention.keep",
	"hc-success":  "heartbeat.success",
	"hc-failure":  "heartbeat.failure",
	"hc-always":   "heartbeat.always",
	"docker-host": "docker.host",
	"verbose":     "verbose",
}

// Load builds a Config from defaults, an optional YAML file at path,
// DOCKDUMP_* environment variables and flags, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("%w: bind flag %s: %v", ErrLoadConfig, name, err)
				}
			}
		}
	}

	var c Config
	if err := v.UnmarshalExact(&c); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	c.normalize()
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("containers.required", []string{})
	v.SetDefault("containers.skip", []string{})
	v.SetDefault("backup.directory", DefaultBackupDirectory)
	v.SetDefault("backup.timeout", time.Duration(0))
	v.SetDefault("backup.compressors", DefaultCompressors)
	v.SetDefault("backup.report", true)
	v.SetDefault("retention.keep", DefaultKeep)
	v.SetDefault("heartbeat.success", []string{})
	v.SetDefault("heartbeat.failure", []string{})
	v.SetDefault("heartbeat.always", []string{})
	v.SetDefault("heartbeat.timeout", 10*time.Second)
	v.SetDefault("heartbeat.retries", 2)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.role_id", "")
	v.SetDefault("vault.role_name", "")
	v.SetDefault("vault.heartbeat_path", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("verbose", false)
}

// normalize trims whitespace and drops empty entries from every list.
func (c *Config) normalize() {
	c.Containers.Required = clean(c.Containers.Required)
	c.Containers.Skip = clean(c.Containers.Skip)
	c.Backup.Compressors = clean(c.Backup.Compressors)
	c.Heartbeat.Success = clean(c.Heartbeat.Success)
	c.Heartbeat.Failure = clean(c.Heartbeat.Failure)
	c.Heartbeat.Always = clean(c.Heartbeat.Always)
	c.Backup.Directory = strings.TrimSpace(c.Backup.Directory)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
