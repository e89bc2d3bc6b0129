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
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRun          = regexp.MustCompile(`[\s\p{Zs}]+`)
	spaceBeforePunct  = regexp.MustCompile(`\s+([.,!?;:)]+)`)
	spaceAfterBracket = regexp.MustCompile(`([([{])\s+`)
	separatorRun      = regexp.MustCompile(`[=+*_\-~]{3,}`)
	symbolRun         = regexp.MustCompile(`[\p{So}\p{Sk}]+`)
	lonePunct         = regexp.MustCompile(`(^|\s)[^\p{L}\p{N}](\s|$)`)
	multiSpace        = regexp.MustCompile(` {2,}`)
	innerLonePunct    = regexp.MustCompile(`\s[^\p{L}\p{N}\s]\s`)
)

var quoteReplacer = strings.NewReplacer(
	"«", "\"",
	"»", "\"",
	"“", "\"",
	"”", "\"",
)

// cleanContent strips control characters, decorative symbols and stray
// punctuation from extracted page text.
func cleanContent(content string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) || unicode.IsMark(r) {
			return -1
		}
		if r < 32 || r > 126 && r < 160 {
			return -1
		}
		return r
	}, content)

	cleaned = spaceRun.ReplaceAllString(cleaned, " ")

	cleaned = spaceBeforePunct.ReplaceAllString(cleaned, "$1")
	cleaned = spaceAfterBracket.ReplaceAllString(cleaned, "$1")

	cleaned = separatorRun.ReplaceAllString(cleaned, " ")
	cleaned = symbolRun.ReplaceAllString(cleaned, " ")

	cleaned = lonePunct.ReplaceAllString(cleaned, " ")
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	cleaned = quoteReplacer.Replace(cleaned)

	return innerLonePunct.ReplaceAllString(cleaned, " ")
}
