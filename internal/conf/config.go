// Package conf loads alertwatch settings from YAML, environment variables and
// command line flags through viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/civicwatch/alertwatch/internal/errors"
)

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Host            string
	Port            int
	ActorHeader     string        // request header carrying the acting user id
	RateLimit       float64       // sustained write requests per second per actor
	RateBurst       int           // burst size for the write limiter
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Metrics         bool // expose /metrics
}

// SQLiteSettings configures the embedded SQLite store.
type SQLiteSettings struct {
	Path string
}

// MySQLSettings configures a MySQL store.
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// DatabaseSettings selects and configures the alert store.
type DatabaseSettings struct {
	Type      string // sqlite or mysql
	SQLite    SQLiteSettings
	MySQL     MySQLSettings
	SlowQuery time.Duration // queries slower than this are logged at WARN
}

// ConsensusSettings holds the vote thresholds and post-terminal voting policy.
type ConsensusSettings struct {
	ConfirmThreshold int
	RejectThreshold  int
	VotingPolicy     string // reevaluate, sticky or closed
	AllowAuthorVote  bool
}

// IdentitySettings configures the actor directory.
type IdentitySettings struct {
	CacheTTL time.Duration
}

// LoggingSettings configures the central logger.
type LoggingSettings struct {
	Level        string
	JSON         bool
	File         string
	Timezone     string
	ModuleLevels map[string]string
}

// NotificationSettings configures push notifications for alert state changes.
type NotificationSettings struct {
	Enabled   bool
	URLs      []string // shoutrrr service URLs
	Timeout   time.Duration
	QueueSize int
}

// MQTTSettings configures publishing of alert state changes to a broker.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      int
	Retain   bool
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings is the root configuration structure.
type Settings struct {
	Debug        bool
	Server       ServerSettings
	Database     DatabaseSettings
	Consensus    ConsensusSettings
	Identity     IdentitySettings
	Logging      LoggingSettings
	Notification NotificationSettings
	MQTT         MQTTSettings
	Telemetry    TelemetrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// configFile may be empty, in which case the default search paths are used
// and a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper registers defaults, config paths and environment bindings, then
// reads the configuration file.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}
	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "alertwatch"))
	}
	return append(paths, "/etc/alertwatch")
}

// DefaultSettings returns the built-in defaults without reading files or environment.
func DefaultSettings() (*Settings, error) {
	v := viper.New()
	applyDefaults(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveYAMLConfig writes settings to configPath. The file is written to a
// temporary sibling first and renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}
	return nil
}
