package main

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Settings struct {
	Port               int    `env:"PORT,default=8000"`
	BasePath           string `env:"BASE_PATH,default=/realtime"`
	JWTSecret          string `env:"JWT_SECRET,required=true"`
	APIKeys            string `env:"API_KEYS"`
	AuthRequired       bool   `env:"AUTH_REQUIRED,default=true"`
	AuthTimeoutSeconds int    `env:"AUTH_TIMEOUT_SECONDS,default=10"`
	AllowedOrigins     string `env:"ALLOWED_ORIGINS"`
	SendBufferSize     int    `env:"SEND_BUFFER_SIZE,default=64"`
	EventBufferSize    int    `env:"EVENT_BUFFER_SIZE,default=1000"`
	MongoDBURI         string `env:"MONGODB_URI"`
	MongoDBDatabase    string `env:"MONGODB_DATABASE,default=realtime"`
	LogEncoding        string `env:"LOG_ENCODING,default=console"`
	LogLevel           string `env:"LOG_LEVEL,default=debug"`
}

// LoadSettings reads a .env file when present, then the environment.
func LoadSettings() (Settings, error) {
	_ = godotenv.Load()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)

	return settings, err
}

func (s Settings) AuthTimeout() time.Duration {
	return time.Duration(s.AuthTimeoutSeconds) * time.Second
}

func (s Settings) APIKeyList() []string {
	return splitList(s.APIKeys)
}

func (s Settings) AllowedOriginList() []string {
	return splitList(s.AllowedOrigins)
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
