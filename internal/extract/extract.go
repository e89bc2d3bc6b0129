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

package extract

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"Unbewohnte/NTVbot/internal/logging"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

var (
	ErrExtraction    = errors.New("content extraction failed")
	ErrProtectedPage = errors.New("page is protected (CloudFlare or similar)")
	ErrNotEnoughText = errors.New("not enough text on page")
)

const (
	MethodTrafilatura = "trafilatura"
	MethodReadability = "readability"
	MethodStructured  = "structured"
	MethodFallback    = "fallback"
)

const minContentLength = 100

// Content is the headline and body text found on a web page.
type Content struct {
	Title       string
	Content     string
	PublishedAt *time.Time
	Method      string
}

type Config struct {
	MaxContentSize uint `json:"max_content_size"`
	UseBrowser     bool `json:"use_browser"`
	TimeoutSeconds uint `json:"timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		MaxContentSize: 3500,
		UseBrowser:     false,
		TimeoutSeconds: 15,
	}
}

// PageFetcher returns the rendered HTML of a page.
type PageFetcher func(ctx context.Context, pageURL string) ([]byte, error)

type Extractor struct {
	conf    Config
	logger  logging.Logger
	fetch   PageFetcher
	browser PageFetcher
}

func New(conf Config, logger logging.Logger) *Extractor {
	if conf.TimeoutSeconds == 0 {
		conf.TimeoutSeconds = DefaultConfig().TimeoutSeconds
	}

	e := &Extractor{
		conf:   conf,
		logger: logger.With(logging.String("component", "extract")),
	}
	e.fetch = e.fetchHTTP
	if conf.UseBrowser {
		e.browser = NewBrowserFetcher(time.Duration(conf.TimeoutSeconds) * time.Second)
	}

	return e
}

// Extract downloads the page at pageURL and pulls the article headline and
// body text out of it. Pages that cannot be fetched directly are retried in
// a headless browser when one is configured.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (Content, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Host == "" {
		return Content{}, fmt.Errorf("%w: invalid url %q", ErrExtraction, pageURL)
	}

	body, err := e.fetch(ctx, pageURL)
	if err == nil && isProtectedPage(body) {
		err = ErrProtectedPage
	}
	if err != nil && e.browser != nil {
		e.logger.Warn("Direct fetch failed, retrying in browser",
			logging.String("url", pageURL),
			logging.Error(err),
		)
		body, err = e.browser(ctx, pageURL)
	}
	if err != nil {
		return Content{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	content, err := e.parse(body, parsedURL)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	content.Title = strings.TrimSpace(content.Title)
	content.Content = truncate(cleanContent(content.Content), e.conf.MaxContentSize)

	e.logger.Debug("Extracted page content",
		logging.String("url", pageURL),
		logging.String("method", content.Method),
		logging.String("title", content.Title),
		logging.Int("length", len(content.Content)),
	)

	return content, nil
}

func (e *Extractor) parse(body []byte, pageURL *url.URL) (Content, error) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL:    pageURL,
		EnableFallback: true,
	})
	if err == nil && result != nil && len(result.ContentText) > minContentLength {
		content := Content{
			Title:   result.Metadata.Title,
			Content: result.ContentText,
			Method:  MethodTrafilatura,
		}
		if !result.Metadata.Date.IsZero() {
			date := result.Metadata.Date
			content.PublishedAt = &date
		}
		if content.Title == "" {
			content.Title = pageTitle(body)
		}
		return content, nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && len(article.TextContent) > minContentLength {
		pubTime := article.PublishedTime
		if pubTime == nil {
			pubTime = article.ModifiedTime
		}

		return Content{
			Title:       article.Title,
			Content:     article.TextContent,
			PublishedAt: pubTime,
			Method:      MethodReadability,
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, fmt.Errorf("parse html: %w", err)
	}

	return e.extractCustomContent(doc)
}

func (e *Extractor) fetchHTTP(ctx context.Context, pageURL string) ([]byte, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &http.Client{
		Timeout: time.Duration(e.conf.TimeoutSeconds) * time.Second,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			req.Header = via[0].Header.Clone()
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load page: unexpected status %s", resp.Status)
	}

	var reader io.Reader
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	default:
		reader = resp.Body
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		if !utf8.Valid(body) {
			return nil, errors.New("received binary data instead of text")
		}
	}

	return body, nil
}

func setBrowserHeaders(req *http.Request) {
	headers := map[string]string{
		"User-Agent":                randomUserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.8,ru-RU;q=0.5,ru;q=0.3",
		"Accept-Encoding":           "gzip, deflate",
		"Connection":                "keep-alive",
		"Referer":                   "https://www.google.com/",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; SM-S901B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func isProtectedPage(body []byte) bool {
	bodyStr := string(body)
	return strings.Contains(bodyStr, "Cloudflare") ||
		strings.Contains(bodyStr, "DDoS protection") ||
		strings.Contains(bodyStr, "Checking your browser") ||
		len(bodyStr) < 100 && strings.Contains(bodyStr, "<html")
}

func (e *Extractor) extractCustomContent(doc *goquery.Document) (Content, error) {
	if content, ok := e.extractStructuredContent(doc); ok {
		return content, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text, err := extractFallbackContent(doc)
	if err != nil {
		return Content{}, err
	}

	return Content{
		Title:   title,
		Content: text,
		Method:  MethodFallback,
	}, nil
}

func (e *Extractor) extractStructuredContent(doc *goquery.Document) (Content, bool) {
	articleSelection := doc.Find("article, main, .article, .post, .content")
	if articleSelection.Length() == 0 {
		return Content{}, false
	}

	var title string
	for _, selector := range []string{"h1", "h2", ".title", ".article-title"} {
		if title == "" {
			title = strings.TrimSpace(articleSelection.Find(selector).First().Text())
		}
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	content := strings.Join(strings.Fields(articleSelection.Text()), " ")
	if len(content) < minContentLength {
		return Content{}, false
	}

	return Content{
		Title:   title,
		Content: content,
		Method:  MethodStructured,
	}, true
}

func extractFallbackContent(doc *goquery.Document) (string, error) {
	doc.Find("script, style, noscript, iframe, nav, footer").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	mainContent := ""
	doc.Find("p, div, article").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); len(text) > len(mainContent) {
			mainContent = text
		}
	})

	if len(mainContent) < 500 {
		mainContent = strings.TrimSpace(doc.Find("body").Text())
	}

	mainContent = strings.Join(strings.Fields(mainContent), " ")
	if len(mainContent) < minContentLength {
		return "", ErrNotEnoughText
	}

	return mainContent, nil
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// truncate cuts s to at most size bytes without splitting a rune. Zero
// size means no limit.
func truncate(s string, size uint) string {
	if size == 0 || uint(len(s)) <= size {
		return s
	}

	cut := int(size)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
