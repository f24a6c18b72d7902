package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Log     LogConfig     `mapstructure:"log"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Storage backends selectable via storage.backend.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// StorageConfig selects and parameterizes the record store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database file (sqlite backend).
	Path string `mapstructure:"path"`
	// URI is the connection string (mongo backend).
	URI string `mapstructure:"uri"`
	// Database is the mongo database name; defaults to "gabriela".
	Database string `mapstructure:"database"`
}

// AgentConfig holds the agent loop configuration
type AgentConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxTurns     int    `mapstructure:"max_turns"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from config.yaml, or from the file named by
// the CONFIG_PATH environment variable when set. Secrets may be supplied via
// environment (OPENAI_API_KEY, MONGO_URI) instead of the file.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("storage.backend", BackendSQLite)
	viper.SetDefault("storage.path", "gabriela.db")
	viper.SetDefault("storage.database", "gabriela")
	viper.SetDefault("agent.max_turns", 5)
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.Storage.URI == "" {
		config.Storage.URI = os.Getenv("MONGO_URI")
	}

	return &config, nil
}
