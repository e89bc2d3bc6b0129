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
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"Unbewohnte/NTVbot/internal/article"

	ollama "github.com/ollama/ollama/api"
)

const (
	TEMPLATE_HEADLINE = "{{HEADLINE}}"
	TEMPLATE_CONTENT  = "{{CONTENT}}"
	TEMPLATE_SCORE    = "{{SCORE}}"
	TEMPLATE_CATEGORY = "{{CATEGORY}}"
)

const DefaultExplainPrompt = "A classifier rated the following news text as \"{{CATEGORY}}\" " +
	"with a truth score of {{SCORE}}%. In two sentences, point out which claims in the text " +
	"a reader should verify and why. Do not repeat the score.\n\nHeadline: {{HEADLINE}}\n\nText:\n{{CONTENT}}"

// Client talks to a local Ollama server. It is used to attach a short
// human readable explanation to verification results.
type Client struct {
	ModelName      string
	Prompt         string
	Client         *ollama.Client
	TimeoutSeconds uint
}

func NewClient(ollamaModel string, prompt string, timeoutSeconds uint) (*Client, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}

	return newClient(client, ollamaModel, prompt, timeoutSeconds), nil
}

// NewClientWithHost connects to the Ollama server at host instead of OLLAMA_HOST.
func NewClientWithHost(host string, ollamaModel string, prompt string, timeoutSeconds uint) (*Client, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return newClient(ollama.NewClient(base, http.DefaultClient), ollamaModel, prompt, timeoutSeconds), nil
}

func newClient(client *ollama.Client, ollamaModel string, prompt string, timeoutSeconds uint) *Client {
	if prompt == "" {
		prompt = DefaultExplainPrompt
	}

	return &Client{
		ModelName:      ollamaModel,
		Prompt:         prompt,
		Client:         client,
		TimeoutSeconds: timeoutSeconds,
	}
}

// Query sends prompt to the model. A zero TimeoutSeconds means no timeout.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	if c.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(
			ctx,
			time.Duration(c.TimeoutSeconds)*time.Second,
		)
		defer cancel()
	}

	var response strings.Builder
	err := c.Client.Generate(ctx, &ollama.GenerateRequest{
		Model:  c.ModelName,
		Prompt: prompt,
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})

	if err != nil {
		return "", err
	}

	return removeThinkBlock(response.String()), nil
}

// Explain asks the model why the verification came out the way it did.
func (c *Client) Explain(ctx context.Context, result article.Verification) (string, error) {
	prompt := strings.ReplaceAll(c.Prompt, TEMPLATE_HEADLINE, result.Headline)
	prompt = strings.ReplaceAll(prompt, TEMPLATE_CONTENT, result.Content)
	prompt = strings.ReplaceAll(prompt, TEMPLATE_SCORE, strconv.Itoa(result.TruthScore))
	prompt = strings.ReplaceAll(prompt, TEMPLATE_CATEGORY, string(result.TruthCategory))

	explanation, err := c.Query(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("explanation query: %w", err)
	}

	return explanation, nil
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

func removeThinkBlock(input string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(input, ""))
}
