package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// Database types.
const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateServerSettings,
		validateDatabaseSettings,
		validateConsensusSettings,
		validateNotificationSettings,
		validateMQTTSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateServerSettings(s *Settings) error {
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", s.Server.Port)
	}
	if strings.TrimSpace(s.Server.ActorHeader) == "" {
		return fmt.Errorf("server.actorheader must not be empty")
	}
	if s.Server.RateLimit < 0 || s.Server.RateBurst < 0 {
		return fmt.Errorf("server.ratelimit and server.rateburst must not be negative")
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	s.Database.Type = strings.ToLower(s.Database.Type)
	switch s.Database.Type {
	case DatabaseSQLite:
		if s.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path must be set")
		}
	case DatabaseMySQL:
		if s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "" {
			return fmt.Errorf("database.mysql.host and database.mysql.database must be set")
		}
	default:
		return fmt.Errorf("database.type %q is not supported", s.Database.Type)
	}
	return nil
}

func validateConsensusSettings(s *Settings) error {
	c := s.Consensus
	if c.ConfirmThreshold < 1 || c.RejectThreshold < 1 {
		return fmt.Errorf("consensus thresholds must be at least 1")
	}
	if !isVotingPolicy(c.VotingPolicy) {
		return fmt.Errorf("consensus.votingpolicy %q is not supported", c.VotingPolicy)
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if !s.Notification.Enabled {
		return nil
	}
	if len(s.Notification.URLs) == 0 {
		return fmt.Errorf("notification.urls must not be empty when notifications are enabled")
	}
	if s.Notification.QueueSize < 1 {
		return fmt.Errorf("notification.queuesize must be at least 1")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	u, err := url.Parse(s.MQTT.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q is not a valid broker URL", s.MQTT.Broker)
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must be set")
	}
	return nil
}

func isVotingPolicy(value string) bool {
	switch strings.ToLower(value) {
	case "reevaluate", "sticky", "closed":
		return true
	}
	return false
}
