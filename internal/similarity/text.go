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

// Package similarity compares short texts such as headlines.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// words shorter than this carry little meaning in a headline
const minWordLength = 4

// Words returns the set of lowercased significant words of text.
func Words(text string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range fields {
		if utf8.RuneCountInString(word) < minWordLength {
			continue
		}
		set[strings.ToLower(word)] = struct{}{}
	}

	return set
}

// Jaccard is the share of significant words two texts have in common,
// from 0 to 1. Texts without significant words are never similar.
func Jaccard(text1, text2 string) float64 {
	return jaccardSets(Words(text1), Words(text2))
}

func jaccardSets(set1, set2 map[string]struct{}) float64 {
	intersection := 0
	for word := range set1 {
		if _, exists := set2[word]; exists {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Duplicates reports, for every text, whether an earlier one is at least
// threshold similar to it.
func Duplicates(texts []string, threshold float64) []bool {
	duplicate := make([]bool, len(texts))
	seen := make([]map[string]struct{}, 0, len(texts))

	for i, text := range texts {
		words := Words(text)
		for _, earlier := range seen {
			if jaccardSets(words, earlier) >= threshold {
				duplicate[i] = true
				break
			}
		}
		if !duplicate[i] {
			seen = append(seen, words)
		}
	}

	return duplicate
}
