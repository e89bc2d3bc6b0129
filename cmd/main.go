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

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Unbewohnte/NTVbot/internal/bot"
	"Unbewohnte/NTVbot/internal/extract"
	"Unbewohnte/NTVbot/internal/headlines"
	"Unbewohnte/NTVbot/internal/inference"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/tokenizer"
	"Unbewohnte/NTVbot/internal/web"

	"golang.org/x/sync/errgroup"
)

const CONFIG_NAME string = "config.json"

var (
	CONFIG *bot.Config
)

func init() {
	configPath := flag.String("config", CONFIG_NAME, "path to the configuration file")
	flag.Parse()

	var err error
	CONFIG, err = bot.ConfigFrom(*configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Panic("Failed to read the configuration file: " + err.Error())
	}
	if err != nil {
		log.Println("No configuration file found: " + err.Error() + ". Creating a new one...")
		CONFIG = bot.DefaultConfig()
		err = CONFIG.Save(*configPath)
		if err != nil {
			log.Panic("Failed to create a new configuration file: " + err.Error())
		}
		os.Exit(0)
	}

	if err := CONFIG.ApplyEnv(); err != nil {
		log.Panic(err)
	}

	if err := CONFIG.Validate(); err != nil {
		log.Panic("Invalid configuration: " + err.Error())
	}
}

func main() {
	logger, err := logging.New(CONFIG.Logging)
	if err != nil {
		log.Panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	tok := tokenizer.New(CONFIG.Model.VocabSource, CONFIG.Model.MaxSeqLength)
	engine := inference.NewEngine(
		tok,
		CONFIG.Model.ModelPath(),
		inference.NewONNXLoader(inference.ONNXConfig{
			LibraryPath:  CONFIG.Model.ONNXLibrary,
			InputName:    CONFIG.Model.InputName,
			OutputName:   CONFIG.Model.OutputName,
			MaxSeqLength: tok.MaxSeqLength(),
		}),
		logger,
		m,
	)
	defer engine.Close()

	source, err := headlines.NewFromConfig(ctx, CONFIG.Headlines, logger, m)
	if err != nil {
		logger.Error("Failed to set up headlines", logging.Error(err))
		os.Exit(1)
	}
	defer source.Close()

	opts := []pipeline.Option{
		pipeline.WithSource(source),
		pipeline.WithExtractor(extract.New(CONFIG.Extract, logger)),
		pipeline.WithMetrics(m),
	}
	if CONFIG.Explain.Enabled {
		explainer, err := newExplainer(CONFIG.Explain)
		if err != nil {
			logger.Error("Failed to set up the LLM client", logging.Error(err))
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithExplainer(explainer))
	}

	analyzer, err := pipeline.New(engine, CONFIG.Analysis, logger, opts...)
	if err != nil {
		logger.Error("Failed to set up the analyzer", logging.Error(err))
		os.Exit(1)
	}

	if _, err := CONFIG.OpenDB(); err != nil {
		logger.Error("Failed to open the database", logging.Error(err))
		os.Exit(1)
	}
	defer CONFIG.GetDB().Close()

	// the model loads lazily, warming up only saves the first request
	go func() {
		if err := analyzer.Initialize(ctx); err != nil {
			logger.Warn("Model warm-up failed, will retry on first request", logging.Error(err))
		}
	}()

	group, ctx := errgroup.WithContext(ctx)

	if CONFIG.Web.Enabled {
		server := web.NewServer(analyzer, web.Config{
			Port:         CONFIG.Web.Port,
			DefaultLimit: CONFIG.Headlines.DefaultLimit,
		}, logger, m)
		group.Go(func() error {
			return server.Start(ctx)
		})
	}

	if CONFIG.Telegram.Enabled {
		telegramBot, err := bot.NewBot(CONFIG, analyzer, logger)
		if err != nil {
			logger.Error("Failed to connect to Telegram", logging.Error(err))
			os.Exit(1)
		}
		group.Go(func() error {
			return telegramBot.Start(ctx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stopped with error", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("Stopped")
}

func newExplainer(conf bot.ExplainConf) (*inference.Client, error) {
	if conf.OllamaHost != "" {
		return inference.NewClientWithHost(conf.OllamaHost, conf.OllamaModel, conf.Prompt, conf.QueryTimeoutSeconds)
	}
	return inference.NewClient(conf.OllamaModel, conf.Prompt, conf.QueryTimeoutSeconds)
}
