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
	"net/http"
	"net/http/httptest"
	"testing"

	"Unbewohnte/NTVbot/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Feed</title>
  <link>http://example.com</link>
  <description>Test news</description>
  <item>
    <title>Older story</title>
    <link>http://example.com/older</link>
    <description>Something happened yesterday</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>Newer story</title>
    <link>http://example.com/newer</link>
    <description>Something happened today</description>
    <pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>No link</title>
    <description>Dropped</description>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRSSHeadlines(t *testing.T) {
	server := newFeedServer(t)
	rss := NewRSS([]string{server.URL + "/feed.xml", server.URL + "/broken.xml"}, logging.NewNop())

	articles, err := rss.Headlines(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "Newer story", articles[0].Title)
	assert.Equal(t, "http://example.com/newer", articles[0].URL)
	assert.Equal(t, "2006-01-03T15:04:05Z", articles[0].PublishedAt)
	assert.Equal(t, "Test Feed", articles[0].Source.Name)
	require.NotNil(t, articles[0].Content)
	assert.Equal(t, "Something happened today", *articles[0].Content)
	assert.Equal(t, "Older story", articles[1].Title)
}

func TestRSSHeadlinesLimit(t *testing.T) {
	server := newFeedServer(t)
	rss := NewRSS([]string{server.URL + "/feed.xml"}, logging.NewNop())

	articles, err := rss.Headlines(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Newer story", articles[0].Title)
}

func TestRSSAllFeedsFail(t *testing.T) {
	server := newFeedServer(t)
	rss := NewRSS([]string{server.URL + "/broken.xml"}, logging.NewNop())

	_, err := rss.Headlines(context.Background(), 10)
	assert.Error(t, err)

	_, err = NewRSS(nil, logging.NewNop()).Headlines(context.Background(), 10)
	assert.Error(t, err)
}

func TestRSSThroughService(t *testing.T) {
	server := newFeedServer(t)
	rss := NewRSS([]string{server.URL + "/broken.xml"}, logging.NewNop())
	service := NewService(rss, nil, testConfig(), logging.NewNop(), nil)

	assert.Empty(t, service.Fetch(context.Background(), 5))
}
