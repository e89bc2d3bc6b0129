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

package bot

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/spreadsheet"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects longer messages
const maxMessageLength = 4096

// errUsage marks errors whose text is meant for the user as is.
var errUsage = errors.New("usage")

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }
func (e usageError) Is(target error) bool {
	return target == errUsage
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

// userMessage turns an error into something safe to show in a chat.
// Internal causes are logged, not sent.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return err.Error()
	case errors.Is(err, pipeline.ErrEmptyText):
		return "Nothing to analyze: the text is empty"
	case errors.Is(err, pipeline.ErrNoSource):
		return "Headline fetching is not configured"
	case errors.Is(err, pipeline.ErrNoExtract):
		return "Link analysis is not configured"
	case errors.Is(err, spreadsheet.ErrMissingColumns):
		return "The spreadsheet needs title and url columns"
	default:
		return "Analysis failed, please retry"
	}
}

// Левенштейн
func minDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := range dp[0] {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if ra[i-1] == rb[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = 1 + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
			}
		}
	}
	return dp[m][n]
}

func (bot *Bot) findSimilarCommands(input string) []string {
	type cmdDistance struct {
		name     string
		distance int
	}

	var distances []cmdDistance
	for _, cmd := range bot.commands {
		dist := minDistance(input, cmd.Name)
		distances = append(distances, cmdDistance{cmd.Name, dist})
	}

	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	var suggestions []string
	for i := 0; i < 3 && i < len(distances); i++ {
		suggestions = append(suggestions, distances[i].name)
	}

	return suggestions
}

// splitMessage cuts text into chunks Telegram accepts, preferring line
// boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		length  int
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			length = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLength := utf8.RuneCountInString(line)
		if length+lineLength > limit {
			flush()
		}

		for lineLength > limit {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
			lineLength -= limit
		}

		current.WriteString(line)
		length += lineLength
	}
	flush()

	return chunks
}

func (bot *Bot) sendMarkdown(chatID int64, text string, replyTo int) {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.ReplyToMessageID = replyTo
		msg.DisableWebPagePreview = true

		if _, err := bot.api.Send(msg); err != nil {
			// titles may carry unbalanced markdown, retry as plain text
			msg.ParseMode = ""
			if _, err := bot.api.Send(msg); err != nil {
				bot.logger.Error("Failed to send message", logging.Int64("chat_id", chatID), logging.Error(err))
				return
			}
		}
	}
}

func (bot *Bot) sendError(chatID int64, text string, replyTo int) {
	msg := tgbotapi.NewMessage(chatID, "❌ "+text)
	msg.ReplyToMessageID = replyTo
	bot.api.Send(msg)
}

func (bot *Bot) sendSuccess(chatID int64, text string, replyTo int) {
	msg := tgbotapi.NewMessage(chatID, "✅ "+text)
	msg.ReplyToMessageID = replyTo
	bot.api.Send(msg)
}
