package config

import (
	"github.com/spf13/viper"
	"sync"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("http_port", "HTTP_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("subgraph_url", "SUBGRAPH_URL")
		viper.BindEnv("subgraph_scope", "SUBGRAPH_SCOPE")
		viper.BindEnv("monitor_interval_seconds", "MONITOR_INTERVAL_SECONDS")
		viper.BindEnv("fetch_timeout_seconds", "FETCH_TIMEOUT_SECONDS")
		viper.BindEnv("subgraph_cache_ttl_seconds", "SUBGRAPH_CACHE_TTL_SECONDS")
		viper.BindEnv("subgraph_rate_limit", "SUBGRAPH_RATE_LIMIT")
		viper.BindEnv("subgraph_rate_window_seconds", "SUBGRAPH_RATE_WINDOW_SECONDS")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")

		viper.SetDefault("http_port", 8080)
		viper.SetDefault("db_path", "/app/data/bot.db")
		viper.SetDefault("subgraph_url", "https://api.thegraph.com")
		viper.SetDefault("subgraph_scope", "aave/protocol-v3")
		viper.SetDefault("monitor_interval_seconds", 60)
		viper.SetDefault("fetch_timeout_seconds", 12)
		viper.SetDefault("subgraph_cache_ttl_seconds", 300)
		viper.SetDefault("subgraph_rate_limit", 10)
		viper.SetDefault("subgraph_rate_window_seconds", 60)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}
