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

// Package metrics holds the Prometheus collectors of the analysis pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Predictions        *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	Categories         *prometheus.CounterVec
	BatchSize          prometheus.Histogram
	BatchFailures      prometheus.Counter
	HeadlineFetches    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ntvbot_predictions_total",
			Help: "Model predictions by outcome",
		}, []string{"outcome"}),
		PredictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ntvbot_prediction_duration_seconds",
			Help:    "Time spent in a single model forward pass",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Categories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ntvbot_truth_category_total",
			Help: "Analysis results by truth category",
		}, []string{"category"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ntvbot_batch_size",
			Help:    "Number of articles per batch analysis",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		BatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntvbot_batch_item_failures_total",
			Help: "Batch items that failed analysis",
		}),
		HeadlineFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ntvbot_headline_fetches_total",
			Help: "Headline source fetches by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePrediction(start time.Time, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Predictions.WithLabelValues(outcome).Inc()
	m.PredictionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveCategory(category string) {
	if m == nil {
		return
	}
	m.Categories.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveBatch(size, failures int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	m.BatchFailures.Add(float64(failures))
}

func (m *Metrics) ObserveHeadlineFetch(outcome string) {
	if m == nil {
		return
	}
	m.HeadlineFetches.WithLabelValues(outcome).Inc()
}
