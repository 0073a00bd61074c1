package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	InfluxDB struct {
		URL    string
		Token  string
		Org    string
		Bucket string
	}
	MySQL struct {
		DSN     string
		MaxIdle int `mapstructure:"max_idle"`
		MaxOpen int `mapstructure:"max_open"`
	}
	Kafka struct {
		Brokers []string
		Topic   string
		GroupID string `mapstructure:"group_id"`
	}
	GeoIP struct {
		CityPath string `mapstructure:"city_path"`
		ASNPath  string `mapstructure:"asn_path"`
	}
	Webhook struct {
		URL string
	}
	Log struct {
		Level string
		Path  string
	}
	Metrics struct {
		Listen string
	}
	Monitor struct {
		MaxActivitiesPerKey  int `mapstructure:"max_activities_per_key"`
		RetentionHours       int `mapstructure:"retention_hours"`
		SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
		EventBufferSize      int `mapstructure:"event_buffer_size"`
	}
	Alert struct {
		MinSeverity     string `mapstructure:"min_severity"`
		CooldownMinutes int    `mapstructure:"cooldown_minutes"`
	}
	Security struct {
		WhitelistIPs []string `mapstructure:"whitelist_ips"`
	} `mapstructure:"Security"`
}

var GlobalConfig Config

func Init() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("config")

	// 监控引擎相关的默认值，配置文件可覆盖
	viper.SetDefault("Monitor.max_activities_per_key", 1000)
	viper.SetDefault("Monitor.retention_hours", 24)
	viper.SetDefault("Monitor.sweep_interval_minutes", 60)
	viper.SetDefault("Monitor.event_buffer_size", 4096)
	viper.SetDefault("Alert.min_severity", "high")
	viper.SetDefault("Alert.cooldown_minutes", 60)
	viper.SetDefault("Metrics.listen", ":2112")
	viper.SetDefault("Log.level", "info")
	viper.SetDefault("Log.path", "logs/menshen.log")

	if err := viper.ReadInConfig(); err != nil {
		return err
	}

	return viper.Unmarshal(&GlobalConfig)
}
