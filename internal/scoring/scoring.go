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

// Package scoring turns a raw model prediction into a truth score,
// a confidence value and a truth category.
package scoring

import (
	"errors"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryTrue       Category = "True"
	CategoryMaybeTrue  Category = "Maybe True"
	CategoryMaybeFalse Category = "Maybe False"
	CategoryFalse      Category = "False"
)

// Rank orders categories from least (False) to most (True) truthful.
func (c Category) Rank() int {
	switch c {
	case CategoryTrue:
		return 3
	case CategoryMaybeTrue:
		return 2
	case CategoryMaybeFalse:
		return 1
	default:
		return 0
	}
}

var ErrInvalidThresholds = errors.New("invalid category thresholds")

// Thresholds is the one source of truth for category bands, used both for
// scoring and for the legend shown to users.
//
//	score >= True        -> True
//	score >  MaybeTrue   -> Maybe True
//	score >= MaybeFalse  -> Maybe False
//	otherwise            -> False
type Thresholds struct {
	True       int `json:"true"`
	MaybeTrue  int `json:"maybe_true"`
	MaybeFalse int `json:"maybe_false"`
}

// DefaultThresholds are 85/50. With MaybeFalse at 0 no score in [0,100]
// reaches the False band.
func DefaultThresholds() Thresholds {
	return Thresholds{
		True:       85,
		MaybeTrue:  50,
		MaybeFalse: 0,
	}
}

func (t Thresholds) Validate() error {
	if t.MaybeFalse < 0 || t.True > 100 {
		return fmt.Errorf("%w: values must lie within [0,100]", ErrInvalidThresholds)
	}
	if !(t.MaybeFalse <= t.MaybeTrue && t.MaybeTrue < t.True) {
		return fmt.Errorf(
			"%w: need maybe_false (%d) <= maybe_true (%d) < true (%d)",
			ErrInvalidThresholds, t.MaybeFalse, t.MaybeTrue, t.True,
		)
	}
	return nil
}

func (t Thresholds) Categorize(truthScore int) Category {
	switch {
	case truthScore >= t.True:
		return CategoryTrue
	case truthScore > t.MaybeTrue:
		return CategoryMaybeTrue
	case truthScore >= t.MaybeFalse:
		return CategoryMaybeFalse
	default:
		return CategoryFalse
	}
}

type Score struct {
	TruthScore int
	Confidence int
	Category   Category
}

type Scorer struct {
	thresholds Thresholds
}

func NewScorer(thresholds Thresholds) (*Scorer, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{thresholds: thresholds}, nil
}

func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score derives the user-facing values from a raw prediction in [0,100].
// The truth score is the doubled prediction clamped to 100.
func (s *Scorer) Score(prediction int) Score {
	prediction = clamp(prediction, 0, 100)

	truthScore := clamp(prediction*2, 0, 100)
	confidence := prediction - 50
	if confidence < 0 {
		confidence = -confidence
	}
	confidence *= 2

	return Score{
		TruthScore: truthScore,
		Confidence: confidence,
		Category:   s.thresholds.Categorize(truthScore),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Legend describes the category bands as markdown.
func (t Thresholds) Legend() string {
	var legend strings.Builder

	legend.WriteString("Truth score ranges from 0 to 100%, categorized as follows:\n\n")
	legend.WriteString(fmt.Sprintf("- **True** (%d-100%%): content appears to be factual\n", t.True))
	legend.WriteString(fmt.Sprintf("- **Maybe True** (%d-%d%%): mostly factual, may contain unverified claims\n", t.MaybeTrue+1, t.True-1))
	legend.WriteString(fmt.Sprintf("- **Maybe False** (%d-%d%%): questionable claims, may be misleading\n", t.MaybeFalse, t.MaybeTrue))
	if t.MaybeFalse > 0 {
		legend.WriteString(fmt.Sprintf("- **False** (0-%d%%): significant misinformation\n", t.MaybeFalse-1))
	} else {
		legend.WriteString("- **False**: not assigned with the current thresholds\n")
	}
	legend.WriteString("\nConfidence measures the distance of the model from indecision, not accuracy.\n")

	return legend.String()
}
