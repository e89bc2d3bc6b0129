/*
   NTVbot - News Truthfulness Verification bot
   Copyright (C) 2025  Unbewohnte (Kasyanov Nikolay Alexeevich)

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"Unbewohnte/NTVbot/internal/db"
	"Unbewohnte/NTVbot/internal/extract"
	"Unbewohnte/NTVbot/internal/headlines"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/tokenizer"

	"github.com/joho/godotenv"
)

var CONFIG_PATH string = ""

const (
	EnvTelegramToken = "NTV_TELEGRAM_TOKEN"
	EnvNewsAPIKey    = "NTV_NEWSAPI_KEY"
	EnvRedisAddr     = "NTV_REDIS_ADDR"
)

const ModelFileName = "model.onnx"

type ModelConf struct {
	Dir          string `json:"dir"`
	VocabSource  string `json:"vocab_source"`
	ONNXLibrary  string `json:"onnx_library"`
	MaxSeqLength int    `json:"max_seq_length"`
	InputName    string `json:"input_name"`
	OutputName   string `json:"output_name"`
}

// ModelPath is the location of the ONNX classifier.
func (m ModelConf) ModelPath() string {
	return filepath.Join(m.Dir, ModelFileName)
}

type ExplainConf struct {
	Enabled             bool   `json:"enabled"`
	OllamaHost          string `json:"ollama_host"`
	OllamaModel         string `json:"ollama_model"`
	QueryTimeoutSeconds uint   `json:"query_timeout_seconds"`
	Prompt              string `json:"prompt"`
}

type TelegramConf struct {
	Enabled        bool    `json:"enabled"`
	ApiToken       string  `json:"api_token"`
	Public         bool    `json:"is_public"`
	AllowedUserIDs []int64 `json:"allowed_user_ids"`
}

type WebConf struct {
	Enabled bool `json:"enabled"`
	Port    uint `json:"port"`
}

type DBConf struct {
	File string `json:"file"`
	db   *db.DB
}

type Config struct {
	Model     ModelConf        `json:"model"`
	Analysis  pipeline.Config  `json:"analysis"`
	Headlines headlines.Config `json:"headlines"`
	Explain   ExplainConf      `json:"explain"`
	Extract   extract.Config   `json:"extract"`
	Telegram  TelegramConf     `json:"telegram"`
	Web       WebConf          `json:"web"`
	DB        DBConf           `json:"database"`
	Logging   logging.Config   `json:"logging"`
	Debug     bool             `json:"debug"`

	// values from the file that were replaced by environment variables
	fileSecrets map[string]string
}

func (c *Config) OpenDB() (*db.DB, error) {
	var err error
	c.DB.db, err = db.NewDB(c.DB.File)
	if err != nil {
		return nil, err
	}

	return c.DB.db, nil
}

func (c *Config) GetDB() *db.DB {
	return c.DB.db
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConf{
			Dir:          "models",
			VocabSource:  "models/vocab.txt",
			ONNXLibrary:  "",
			MaxSeqLength: tokenizer.DefaultMaxSeqLength,
			InputName:    "input_ids",
			OutputName:   "logits",
		},
		Analysis:  pipeline.DefaultConfig(),
		Headlines: headlines.DefaultConfig(),
		Explain: ExplainConf{
			Enabled:             false,
			OllamaHost:          "",
			OllamaModel:         "llama3.1:8b",
			QueryTimeoutSeconds: 120,
			Prompt:              "",
		},
		Extract: extract.DefaultConfig(),
		Telegram: TelegramConf{
			Enabled:        true,
			ApiToken:       "tg_api_token",
			Public:         true,
			AllowedUserIDs: []int64{},
		},
		Web: WebConf{
			Enabled: true,
			Port:    8080,
		},
		DB: DBConf{
			File: "NTVBOT.sqlite3",
		},
		Logging: logging.Config{
			Level:       "info",
			File:        "ntvbot.log",
			Development: false,
		},
		Debug: false,
	}
}

// Validate checks the values that would otherwise fail deep inside a
// component at first use.
func (conf *Config) Validate() error {
	if err := conf.Analysis.Thresholds.Validate(); err != nil {
		return err
	}
	if conf.Model.Dir == "" {
		return errors.New("model.dir is empty")
	}
	if conf.Model.VocabSource == "" {
		return errors.New("model.vocab_source is empty")
	}
	if conf.Model.MaxSeqLength < 2 {
		return fmt.Errorf("model.max_seq_length must be at least 2, got %d", conf.Model.MaxSeqLength)
	}
	if conf.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis.concurrency must be at least 1, got %d", conf.Analysis.Concurrency)
	}
	switch conf.Headlines.Provider {
	case headlines.ProviderNewsAPI, headlines.ProviderRSS:
	default:
		return fmt.Errorf("unknown headlines.provider %q", conf.Headlines.Provider)
	}
	if conf.Web.Enabled && (conf.Web.Port == 0 || conf.Web.Port > 65535) {
		return fmt.Errorf("invalid web.port %d", conf.Web.Port)
	}

	return nil
}

// ApplyEnv replaces secrets with environment variables, reading a .env file
// from the working directory first if there is one.
func (conf *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	overrides := []struct {
		env   string
		field *string
	}{
		{EnvTelegramToken, &conf.Telegram.ApiToken},
		{EnvNewsAPIKey, &conf.Headlines.NewsAPI.APIKey},
		{EnvRedisAddr, &conf.Headlines.Cache.RedisAddr},
	}

	for _, o := range overrides {
		value, ok := os.LookupEnv(o.env)
		if !ok || value == "" {
			continue
		}
		if conf.fileSecrets == nil {
			conf.fileSecrets = make(map[string]string)
		}
		if _, seen := conf.fileSecrets[o.env]; !seen {
			conf.fileSecrets[o.env] = *o.field
		}
		*o.field = value
	}

	return nil
}

func (conf *Config) Save(filepath string) error {
	file, err := os.OpenFile(filepath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	// secrets from the environment never end up in the file
	c := *conf
	if v, ok := conf.fileSecrets[EnvTelegramToken]; ok {
		c.Telegram.ApiToken = v
	}
	if v, ok := conf.fileSecrets[EnvNewsAPIKey]; ok {
		c.Headlines.NewsAPI.APIKey = v
	}
	if v, ok := conf.fileSecrets[EnvRedisAddr]; ok {
		c.Headlines.Cache.RedisAddr = v
	}

	jsonBytes, err := json.MarshalIndent(&c, "", "\t")
	if err != nil {
		return err
	}

	_, err = file.Write(jsonBytes)

	CONFIG_PATH = filepath

	return err
}

func ConfigFrom(filepath string) (*Config, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	conf := DefaultConfig()
	err = json.Unmarshal(contents, conf)
	if err != nil {
		return nil, err
	}

	CONFIG_PATH = filepath

	return conf, nil
}

// Update rewrites the file the config was loaded from or last saved to.
func (conf *Config) Update() error {
	if CONFIG_PATH == "" {
		return errors.New("config file path is unknown")
	}

	return conf.Save(CONFIG_PATH)
}
