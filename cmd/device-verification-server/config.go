package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartwatts/device-verification/internal/api/http"
	"github.com/smartwatts/device-verification/internal/db"
	"github.com/smartwatts/device-verification/internal/verification"
)

type Config struct {
	Log          LogConfig
	Http         http.Config
	Db           db.Config
	Token        TokenConfig
	Verification verification.Config
	Registry     RegistryConfig
}

type TokenConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RegistryConfig struct {
	ApprovedChecksums []string `mapstructure:"approved_checksums"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/device-verification-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("token.secret", "TOKEN_SECRET")
	_ = viper.BindEnv("db.url", "DB_URL")
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level), with secrets redacted.
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		redacted.Token.Secret = "<redacted>"
		redacted.Http.AdminAPIKey = "<redacted>"
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
