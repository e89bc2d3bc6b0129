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

package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/tokenizer"
)

var (
	ErrModelLoad      = errors.New("failed to load model")
	ErrNotInitialized = errors.New("model or tokenizer not initialized")
	ErrPrediction     = errors.New("prediction failed")
)

// Session runs the two-class sequence classifier on one sequence of token
// ids and returns the raw output values, logits for class 0 and 1 first.
type Session interface {
	Run(ctx context.Context, inputIDs []int64) ([]float32, error)
	Close() error
}

// SessionLoader opens the model artifact at path.
type SessionLoader func(path string) (Session, error)

type Engine struct {
	tokenizer *tokenizer.Tokenizer
	modelPath string
	load      SessionLoader
	logger    logging.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	session Session
}

func NewEngine(
	tok *tokenizer.Tokenizer,
	modelPath string,
	load SessionLoader,
	logger logging.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		tokenizer: tok,
		modelPath: modelPath,
		load:      load,
		logger:    logger.With(logging.String("component", "inference")),
		metrics:   m,
	}
}

// Initialize loads the vocabulary and then the model. It runs at most once
// at a time and is a no-op after the first success.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil
	}

	e.logger.Info("Initializing tokenizer")
	if err := e.tokenizer.Initialize(ctx); err != nil {
		e.logger.Error("Error loading vocab", logging.Error(err))
		return err
	}

	e.logger.Info("Loading model", logging.String("path", e.modelPath))
	session, err := e.load(e.modelPath)
	if err != nil {
		e.logger.Error("Failed to load model", logging.Error(err))
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	e.session = session
	e.logger.Info("Model loaded successfully")

	return nil
}

func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session != nil
}

// Predict returns the probability of class 1 for text as a percentage.
func (e *Engine) Predict(ctx context.Context, text string) (int, error) {
	e.mu.RLock()
	session := e.session
	e.mu.RUnlock()

	if session == nil {
		return 0, ErrNotInitialized
	}

	encoded, err := e.tokenizer.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPrediction, err)
	}

	start := time.Now()
	scores, err := session.Run(ctx, encoded.InputIDs)
	if err == nil && len(scores) < 2 {
		err = fmt.Errorf("expected 2 output values, got %d", len(scores))
	}
	e.metrics.ObservePrediction(start, err)
	if err != nil {
		e.logger.Error("Prediction error", logging.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrPrediction, err)
	}

	p := Probability(float64(scores[0]), float64(scores[1]))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: non-finite logits %v", ErrPrediction, scores[:2])
	}

	return int(math.Round(p * 100)), nil
}

// Probability is the two-class softmax probability of class 1.
func Probability(logit0, logit1 float64) float64 {
	if math.IsNaN(logit0) || math.IsNaN(logit1) {
		return math.NaN()
	}

	m := math.Max(logit0, logit1)
	if math.IsInf(m, 0) {
		return math.NaN()
	}

	e0 := math.Exp(logit0 - m)
	e1 := math.Exp(logit1 - m)
	return e1 / (e0 + e1)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}

	err := e.session.Close()
	e.session = nil
	return err
}
