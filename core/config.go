package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	DefaultLanguage string `yaml:"default_language" env-default:"fr"`
	DefaultCredits  int    `yaml:"default_credits" env-default:"3"`
	LocalesDir      string `yaml:"locales_dir" env-default:"locales"`
	Telegram        struct {
		ApiKey        string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		Username      string `yaml:"username" env-default:""`
		ListenAddress string `yaml:"listen_address" env-default:":8080"`
		WebhookPath   string `yaml:"webhook_path" env-default:"/webhook"`
		WebhookURL    string `yaml:"webhook_url" env-default:""`
	} `yaml:"telegram"`
	Provider struct {
		ApiKey          string `yaml:"api_key" env:"PROVIDER_API_KEY" env-default:""`
		BaseURL         string `yaml:"base_url" env-default:"https://openrouter.ai/api/v1"`
		Model           string `yaml:"model" env-default:"google/gemini-2.5-flash-image-preview"`
		RequestTimeout  int    `yaml:"request_timeout" env-default:"60"`
		DownloadTimeout int    `yaml:"download_timeout" env-default:"30"`
	} `yaml:"provider"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return conf
}
