package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default consensus thresholds.
const (
	DefaultConfirmThreshold = 3
	DefaultRejectThreshold  = 2
)

// setDefaultConfig registers defaults on the global viper instance.
func setDefaultConfig() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.actorheader", "X-Actor-ID")
	v.SetDefault("server.ratelimit", 5.0)
	v.SetDefault("server.rateburst", 20)
	v.SetDefault("server.readtimeout", 10*time.Second)
	v.SetDefault("server.writetimeout", 15*time.Second)
	v.SetDefault("server.shutdowntimeout", 10*time.Second)
	v.SetDefault("server.metrics", true)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "alertwatch.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "alertwatch")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "alertwatch")
	v.SetDefault("database.slowquery", 200*time.Millisecond)

	v.SetDefault("consensus.confirmthreshold", DefaultConfirmThreshold)
	v.SetDefault("consensus.rejectthreshold", DefaultRejectThreshold)
	v.SetDefault("consensus.votingpolicy", "reevaluate")
	v.SetDefault("consensus.allowauthorvote", true)

	v.SetDefault("identity.cachettl", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.modulelevels", map[string]string{})

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)
	v.SetDefault("notification.queuesize", 64)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "alertwatch")
	v.SetDefault("mqtt.topic", "alertwatch/alerts")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
