package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 50*time.Second)

	// LLM
	viper.SetDefault("llm.endpoint", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.completion_budget", 60*time.Second)
	viper.SetDefault("llm.system_prompt", "")

	// Knowledge store
	viper.SetDefault("knowledge.db_path", "~/.ideakeeper/knowledge.db")

	// Personality tracking
	viper.SetDefault("personality.path", "~/.ideakeeper/personality.yaml")
	viper.SetDefault("personality.min_samples", 10)
	viper.SetDefault("personality.allowed", []string{})

	// Conversation state
	viper.SetDefault("history.retention", time.Hour)
	viper.SetDefault("history.max_entries", 0)

	// Dashboard
	viper.SetDefault("dashboard.enabled", true)
	viper.SetDefault("dashboard.bind", "127.0.0.1")
	viper.SetDefault("dashboard.port", 8080)
	viper.SetDefault("dashboard.url", "")
}
