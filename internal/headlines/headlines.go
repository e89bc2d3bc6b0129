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

package headlines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/similarity"

	"golang.org/x/time/rate"
)

var ErrHeadlineFetch = errors.New("failed to fetch headlines")

const (
	ProviderNewsAPI = "newsapi"
	ProviderRSS     = "rss"
)

// Source returns up to limit current headlines. It never fails: on error it
// logs and returns an empty slice.
type Source interface {
	Fetch(ctx context.Context, limit int) []article.Raw
}

// Provider is a concrete upstream of headlines.
type Provider interface {
	Name() string
	Headlines(ctx context.Context, limit int) ([]article.Raw, error)
}

type NewsAPIConfig struct {
	APIKey  string `json:"api_key"`
	Country string `json:"country"`
	BaseURL string `json:"base_url"`
}

type CacheConfig struct {
	TTLSeconds uint   `json:"ttl_seconds"`
	RedisAddr  string `json:"redis_addr"`
}

type Config struct {
	Provider          string        `json:"provider"`
	NewsAPI           NewsAPIConfig `json:"newsapi"`
	RSSFeeds          []string      `json:"rss_feeds"`
	DefaultLimit      int           `json:"default_limit"`
	TimeoutSeconds    uint          `json:"timeout_seconds"`
	RequestsPerMinute uint          `json:"requests_per_minute"`
	// Headlines at least this similar to an earlier one are dropped.
	// Zero keeps them all.
	DedupThreshold float64     `json:"dedup_threshold"`
	Cache          CacheConfig `json:"cache"`
}

func DefaultConfig() Config {
	return Config{
		Provider: ProviderNewsAPI,
		NewsAPI: NewsAPIConfig{
			APIKey:  "",
			Country: "us",
			BaseURL: DefaultNewsAPIBaseURL,
		},
		RSSFeeds: []string{
			"https://feeds.bbci.co.uk/news/rss.xml",
			"https://rss.cnn.com/rss/edition.rss",
			"https://feeds.skynews.com/feeds/rss/home.xml",
		},
		DefaultLimit:      10,
		TimeoutSeconds:    15,
		RequestsPerMinute: 30,
		DedupThreshold:    0.8,
		Cache: CacheConfig{
			TTLSeconds: 300,
			RedisAddr:  "",
		},
	}
}

// Service wraps a Provider with rate limiting, caching, validation and
// degraded-mode error handling.
type Service struct {
	provider     Provider
	cache        Cache
	cacheTTL     time.Duration
	limiter      *rate.Limiter
	timeout      time.Duration
	defaultLimit int
	dedup        float64
	logger       logging.Logger
	metrics      *metrics.Metrics
	closer       func() error
}

// NewService builds a Service around provider. cache may be nil.
func NewService(provider Provider, cache Cache, conf Config, logger logging.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		provider:     provider,
		cache:        cache,
		cacheTTL:     time.Duration(conf.Cache.TTLSeconds) * time.Second,
		timeout:      time.Duration(conf.TimeoutSeconds) * time.Second,
		defaultLimit: conf.DefaultLimit,
		dedup:        conf.DedupThreshold,
		logger: logger.With(
			logging.String("component", "headlines"),
			logging.String("provider", provider.Name()),
		),
		metrics: m,
	}

	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultConfig().DefaultLimit
	}
	if conf.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(conf.RequestsPerMinute)), 1)
	}

	return s
}

// NewFromConfig picks the provider and cache named by conf. A Redis cache
// that cannot be reached is replaced by an in-memory one.
func NewFromConfig(ctx context.Context, conf Config, logger logging.Logger, m *metrics.Metrics) (*Service, error) {
	var provider Provider
	switch conf.Provider {
	case ProviderNewsAPI, "":
		provider = NewNewsAPI(conf.NewsAPI, &http.Client{Timeout: time.Duration(conf.TimeoutSeconds) * time.Second})
	case ProviderRSS:
		provider = NewRSS(conf.RSSFeeds, logger)
	default:
		return nil, fmt.Errorf("unknown headline provider %q", conf.Provider)
	}

	var (
		cache  Cache
		closer func() error
	)
	if conf.Cache.TTLSeconds > 0 {
		cache = NewMemoryCache()
		if conf.Cache.RedisAddr != "" {
			client, err := ConnectRedis(ctx, conf.Cache.RedisAddr)
			if err != nil {
				logger.Warn("Redis unavailable, caching headlines in memory",
					logging.String("addr", conf.Cache.RedisAddr),
					logging.Error(err),
				)
			} else {
				cache = NewRedisCache(client)
				closer = client.Close
			}
		}
	}

	service := NewService(provider, cache, conf, logger, m)
	service.closer = closer

	return service, nil
}

func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Service) DefaultLimit() int {
	return s.defaultLimit
}

func (s *Service) Fetch(ctx context.Context, limit int) []article.Raw {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	key := cacheKey(s.provider.Name(), limit)
	if s.cache != nil && s.cacheTTL > 0 {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Headline cache lookup failed", logging.Error(err))
		} else if ok {
			s.metrics.ObserveHeadlineFetch("cached")
			return cached
		}
	}

	articles, err := s.fetch(ctx, limit)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrHeadlineFetch, err)
		s.logger.Error("News API error", logging.Error(err))
		s.metrics.ObserveHeadlineFetch("error")
		return []article.Raw{}
	}
	s.metrics.ObserveHeadlineFetch("success")

	articles = s.dedupe(s.validate(articles))
	if len(articles) > limit {
		articles = articles[:limit]
	}

	if s.cache != nil && s.cacheTTL > 0 && len(articles) > 0 {
		if err := s.cache.Set(ctx, key, articles, s.cacheTTL); err != nil {
			s.logger.Warn("Headline cache store failed", logging.Error(err))
		}
	}

	s.logger.Info("News headlines fetched successfully", logging.Int("count", len(articles)))

	return articles
}

func (s *Service) fetch(ctx context.Context, limit int) ([]article.Raw, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.provider.Headlines(ctx, limit)
}

func (s *Service) validate(articles []article.Raw) []article.Raw {
	valid := make([]article.Raw, 0, len(articles))
	for _, a := range articles {
		if err := a.Validate(); err != nil {
			s.logger.Warn("Dropping invalid headline",
				logging.String("url", a.URL),
				logging.Error(err),
			)
			continue
		}
		valid = append(valid, a)
	}

	return valid
}

// dedupe drops repeated URLs and headlines that retell an earlier one,
// which is common when several feeds are merged.
func (s *Service) dedupe(articles []article.Raw) []article.Raw {
	titles := make([]string, len(articles))
	for i, a := range articles {
		titles[i] = a.Title
	}

	var similar []bool
	if s.dedup > 0 {
		similar = similarity.Duplicates(titles, s.dedup)
	}

	urls := make(map[string]struct{}, len(articles))
	unique := make([]article.Raw, 0, len(articles))
	for i, a := range articles {
		if _, seen := urls[a.URL]; seen || (similar != nil && similar[i]) {
			s.logger.Debug("Dropping duplicate headline", logging.String("url", a.URL))
			continue
		}
		urls[a.URL] = struct{}{}
		unique = append(unique, a)
	}

	return unique
}

func cacheKey(provider string, limit int) string {
	return fmt.Sprintf("ntvbot:headlines:%s:%d", provider, limit)
}
