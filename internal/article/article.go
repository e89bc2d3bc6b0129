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

package article

import (
	"errors"
	"fmt"
	"strings"

	"Unbewohnte/NTVbot/internal/scoring"
)

var ErrInvalidArticle = errors.New("invalid article")

type Source struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

// Raw is a news record as delivered by the headline source.
// Title, URL and PublishedAt are required.
type Raw struct {
	Source      Source  `json:"source"`
	Author      *string `json:"author"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	URLToImage  *string `json:"urlToImage"`
	PublishedAt string  `json:"publishedAt"`
	Content     *string `json:"content"`
}

func (r Raw) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(r.PublishedAt) == "" {
		missing = append(missing, "publishedAt")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidArticle, strings.Join(missing, ", "))
	}
	return nil
}

// Text is what gets classified: title and content joined by a space.
func (r Raw) Text() string {
	return strings.TrimSpace(r.Title + " " + deref(r.Content))
}

func (r Raw) ContentText() string {
	return deref(r.Content)
}

type Analyzed struct {
	Raw
	TruthScore    int              `json:"truthScore"`
	TruthCategory scoring.Category `json:"truthCategory"`
	Confidence    int              `json:"confidence"`
}

func NewAnalyzed(raw Raw, score scoring.Score) Analyzed {
	return Analyzed{
		Raw:           raw,
		TruthScore:    score.TruthScore,
		TruthCategory: score.Category,
		Confidence:    score.Confidence,
	}
}

// Verification is the result of checking a single user submission.
type Verification struct {
	Headline      string           `json:"headline"`
	Content       string           `json:"content,omitempty"`
	TruthScore    int              `json:"truthScore"`
	TruthCategory scoring.Category `json:"truthCategory"`
	Confidence    int              `json:"confidence"`
	Explanation   string           `json:"explanation,omitempty"`
}

func NewVerification(headline, content string, score scoring.Score) Verification {
	return Verification{
		Headline:      headline,
		Content:       content,
		TruthScore:    score.TruthScore,
		TruthCategory: score.Category,
		Confidence:    score.Confidence,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
