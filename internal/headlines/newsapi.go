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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"Unbewohnte/NTVbot/internal/article"
)

const (
	DefaultNewsAPIBaseURL = "https://newsapi.org"
	newsAPIMaxPageSize    = 100
)

type newsAPIResponse struct {
	Status       string        `json:"status"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
	TotalResults int           `json:"totalResults"`
	Articles     []article.Raw `json:"articles"`
}

// NewsAPI fetches top headlines from newsapi.org.
type NewsAPI struct {
	conf   NewsAPIConfig
	client *http.Client
}

func NewNewsAPI(conf NewsAPIConfig, client *http.Client) *NewsAPI {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultNewsAPIBaseURL
	}
	if conf.Country == "" {
		conf.Country = "us"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &NewsAPI{
		conf:   conf,
		client: client,
	}
}

func (n *NewsAPI) Name() string {
	return ProviderNewsAPI
}

func (n *NewsAPI) Headlines(ctx context.Context, limit int) ([]article.Raw, error) {
	if limit > newsAPIMaxPageSize {
		limit = newsAPIMaxPageSize
	}

	query := url.Values{}
	query.Set("country", n.conf.Country)
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("apiKey", n.conf.APIKey)

	endpoint := strings.TrimSuffix(n.conf.BaseURL, "/") + "/v2/top-headlines?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request top headlines: %w", err)
	}
	defer resp.Body.Close()

	var body newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}

	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return nil, fmt.Errorf("newsapi returned %s: %s %s", resp.Status, body.Code, body.Message)
	}

	return body.Articles, nil
}
