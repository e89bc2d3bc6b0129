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
	"sort"
	"sync"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

// RSS reads headlines from a set of RSS or Atom feeds. Newest items come
// first.
type RSS struct {
	feeds  []string
	logger logging.Logger
}

func NewRSS(feeds []string, logger logging.Logger) *RSS {
	return &RSS{
		feeds:  feeds,
		logger: logger.With(logging.String("component", "rss")),
	}
}

func (r *RSS) Name() string {
	return ProviderRSS
}

func (r *RSS) Headlines(ctx context.Context, limit int) ([]article.Raw, error) {
	if len(r.feeds) == 0 {
		return nil, errors.New("no rss feeds configured")
	}

	var (
		mu       sync.Mutex
		articles []article.Raw
		failed   int
	)

	group, ctx := errgroup.WithContext(ctx)
	for _, feedURL := range r.feeds {
		group.Go(func() error {
			items, err := r.readFeed(ctx, feedURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				r.logger.Warn("RSS error", logging.String("feed", feedURL), logging.Error(err))
				return nil
			}
			articles = append(articles, items...)
			return nil
		})
	}
	_ = group.Wait()

	if failed == len(r.feeds) {
		return nil, fmt.Errorf("all %d rss feeds failed", failed)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt > articles[j].PublishedAt
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	return articles, nil
}

func (r *RSS) readFeed(ctx context.Context, feedURL string) ([]article.Raw, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	articles := make([]article.Raw, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		articles = append(articles, fromFeedItem(feed, item))
	}

	return articles, nil
}

func fromFeedItem(feed *gofeed.Feed, item *gofeed.Item) article.Raw {
	raw := article.Raw{
		Source:      article.Source{Name: feed.Title},
		Title:       item.Title,
		Description: article.StringPtr(item.Description),
		URL:         item.Link,
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	raw.Content = article.StringPtr(content)

	switch {
	case item.PublishedParsed != nil:
		raw.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		raw.PublishedAt = item.UpdatedParsed.UTC().Format(time.RFC3339)
	default:
		raw.PublishedAt = item.Published
	}

	if item.Author != nil {
		raw.Author = article.StringPtr(item.Author.Name)
	}
	if item.Image != nil {
		raw.URLToImage = article.StringPtr(item.Image.URL)
	}

	return raw
}
