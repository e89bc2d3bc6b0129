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

// Package pipeline ties the model, the scorer and the headline source
// together into single and batch analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/extract"
	"Unbewohnte/NTVbot/internal/headlines"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/scoring"
)

var (
	ErrEmptyText = errors.New("text to analyze is empty")
	ErrNoSource  = errors.New("no headline source configured")
	ErrNoExtract = errors.New("content extraction is not configured")
)

// Predictor returns the model's class-1 probability for text in percent.
type Predictor interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Predict(ctx context.Context, text string) (int, error)
}

// Explainer produces a short human readable comment on a verification.
type Explainer interface {
	Explain(ctx context.Context, result article.Verification) (string, error)
}

// Extractor pulls a headline and body text out of a web page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (extract.Content, error)
}

type Config struct {
	Concurrency  int                `json:"concurrency"`
	AbortOnError bool               `json:"abort_on_error"`
	Thresholds   scoring.Thresholds `json:"thresholds"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  1,
		AbortOnError: false,
		Thresholds:   scoring.DefaultThresholds(),
	}
}

type Option func(*Analyzer)

func WithSource(source headlines.Source) Option {
	return func(a *Analyzer) { a.source = source }
}

func WithExtractor(extractor Extractor) Option {
	return func(a *Analyzer) { a.extractor = extractor }
}

func WithExplainer(explainer Explainer) Option {
	return func(a *Analyzer) { a.explainer = explainer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer is the process-wide analysis service. It is built once and
// shared by every surface.
type Analyzer struct {
	predictor Predictor
	scorer    *scoring.Scorer
	source    headlines.Source
	extractor Extractor
	explainer Explainer
	conf      Config
	logger    logging.Logger
	metrics   *metrics.Metrics

	initMu sync.Mutex
	ready  bool
}

func New(predictor Predictor, conf Config, logger logging.Logger, opts ...Option) (*Analyzer, error) {
	scorer, err := scoring.NewScorer(conf.Thresholds)
	if err != nil {
		return nil, err
	}
	if conf.Concurrency < 1 {
		conf.Concurrency = 1
	}

	a := &Analyzer{
		predictor: predictor,
		scorer:    scorer,
		conf:      conf,
		logger:    logger.With(logging.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Initialize loads the vocabulary and the model. Concurrent callers wait for
// the single attempt in progress; after success it is a no-op. A failed
// attempt may be retried by the next call.
func (a *Analyzer) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.ready {
		return nil
	}

	a.logger.Info("Initializing NewsAnalyzer")
	if err := a.predictor.Initialize(ctx); err != nil {
		a.logger.Error("Initialization failed", logging.Error(err))
		return err
	}
	a.ready = true

	return nil
}

func (a *Analyzer) Ready() bool {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	return a.ready
}

func (a *Analyzer) Legend() string {
	return a.scorer.Thresholds().Legend()
}

// Verify classifies a single headline with optional body text.
func (a *Analyzer) Verify(ctx context.Context, headline, content string) (article.Verification, error) {
	headline = strings.TrimSpace(headline)
	content = strings.TrimSpace(content)

	text := strings.TrimSpace(headline + " " + content)
	if text == "" {
		return article.Verification{}, ErrEmptyText
	}

	if err := a.Initialize(ctx); err != nil {
		return article.Verification{}, err
	}

	prediction, err := a.predictor.Predict(ctx, text)
	if err != nil {
		return article.Verification{}, err
	}

	score := a.scorer.Score(prediction)
	a.metrics.ObserveCategory(string(score.Category))
	result := article.NewVerification(headline, content, score)

	if a.explainer != nil {
		explanation, err := a.explainer.Explain(ctx, result)
		if err != nil {
			a.logger.Warn("Explanation failed", logging.Error(err))
		} else {
			result.Explanation = explanation
		}
	}

	return result, nil
}

// VerifyURL downloads the page, extracts its headline and text, and
// verifies them.
func (a *Analyzer) VerifyURL(ctx context.Context, pageURL string) (article.Verification, error) {
	if a.extractor == nil {
		return article.Verification{}, ErrNoExtract
	}

	content, err := a.extractor.Extract(ctx, pageURL)
	if err != nil {
		return article.Verification{}, err
	}

	return a.Verify(ctx, content.Title, content.Content)
}

// FetchHeadlines returns current headlines. It does not need the model.
func (a *Analyzer) FetchHeadlines(ctx context.Context, limit int) ([]article.Raw, error) {
	if a.source == nil {
		return nil, ErrNoSource
	}

	return a.source.Fetch(ctx, limit), nil
}

// News fetches headlines and analyzes them.
func (a *Analyzer) News(ctx context.Context, limit int) ([]article.Analyzed, error) {
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	articles, err := a.FetchHeadlines(ctx, limit)
	if err != nil {
		return nil, err
	}

	return a.Analyze(ctx, articles)
}

func (a *Analyzer) analyzeItem(ctx context.Context, index int, raw article.Raw) ItemResult {
	if err := ctx.Err(); err != nil {
		return ItemResult{Index: index, Article: article.Analyzed{Raw: raw}, Err: err}
	}

	prediction, err := a.predictor.Predict(ctx, raw.Text())
	if err != nil {
		return ItemResult{Index: index, Article: article.Analyzed{Raw: raw}, Err: fmt.Errorf("analyze %q: %w", raw.Title, err)}
	}

	score := a.scorer.Score(prediction)
	a.metrics.ObserveCategory(string(score.Category))

	return ItemResult{Index: index, Article: article.NewAnalyzed(raw, score)}
}
