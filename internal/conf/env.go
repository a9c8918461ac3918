package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "ALERTWATCH"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the short-form environment variables. Every key is
// also reachable as ALERTWATCH_<SECTION>_<KEY> through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"server.port", "ALERTWATCH_PORT", validateEnvPort},
		{"database.type", "ALERTWATCH_DB_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "ALERTWATCH_DB_PATH", nil},
		{"database.mysql.password", "ALERTWATCH_MYSQL_PASSWORD", nil},
		{"consensus.confirmthreshold", "ALERTWATCH_CONFIRM_THRESHOLD", validateEnvThreshold},
		{"consensus.rejectthreshold", "ALERTWATCH_REJECT_THRESHOLD", validateEnvThreshold},
		{"consensus.votingpolicy", "ALERTWATCH_VOTING_POLICY", validateEnvVotingPolicy},
		{"consensus.allowauthorvote", "ALERTWATCH_ALLOW_AUTHOR_VOTE", validateEnvBool},
		{"telemetry.dsn", "ALERTWATCH_SENTRY_DSN", nil},
		{"debug", "ALERTWATCH_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch strings.ToLower(value) {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	}
	return fmt.Errorf("must be %q or %q", DatabaseSQLite, DatabaseMySQL)
}

func validateEnvVotingPolicy(value string) error {
	if !isVotingPolicy(value) {
		return fmt.Errorf("must be one of reevaluate, sticky, closed")
	}
	return nil
}
