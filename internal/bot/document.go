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
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/spreadsheet"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram bots cannot download files above 20MB anyway
const maxDocumentSize = 20 * 1024 * 1024

var downloadClient = &http.Client{Timeout: 60 * time.Second}

func (bot *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) {
	doc := message.Document
	if !strings.EqualFold(filepath.Ext(doc.FileName), ".xlsx") {
		bot.sendError(message.Chat.ID, "Only .xlsx files are supported", message.MessageID)
		return
	}
	if doc.FileSize > maxDocumentSize {
		bot.sendError(message.Chat.ID, "The file is too big", message.MessageID)
		return
	}

	data, err := bot.downloadFile(ctx, doc.FileID)
	if err != nil {
		bot.logger.Error("Failed to download document",
			logging.String("file", doc.FileName),
			logging.Error(err),
		)
		bot.sendError(message.Chat.ID, "Could not download the file, please retry", message.MessageID)
		return
	}

	reply, err := bot.AnalyzeSpreadsheet(ctx, data)
	if err != nil {
		bot.logger.Warn("Spreadsheet analysis failed",
			logging.String("file", doc.FileName),
			logging.Error(err),
		)
		bot.sendError(message.Chat.ID, userMessage(err), message.MessageID)
		return
	}

	bot.sendReply(message.Chat.ID, reply, message.MessageID)
}

// AnalyzeSpreadsheet scores every article row of an .xlsx file and answers
// with the exported results.
func (bot *Bot) AnalyzeSpreadsheet(ctx context.Context, data []byte) (Reply, error) {
	articles, skipped, err := spreadsheet.Import(data)
	if err != nil {
		return Reply{}, err
	}
	if len(articles) == 0 {
		return Reply{}, newUsageError("The spreadsheet has no valid rows")
	}

	analyzed, err := bot.analyzer.Analyze(ctx, articles)
	failed, partial := partialFailures(err)
	if err != nil && !partial {
		return Reply{}, err
	}

	reply, err := exportReply(analyzed, failed)
	if err != nil {
		return Reply{}, err
	}
	if len(skipped) > 0 {
		reply.Document.Caption += fmt.Sprintf(", %d rows skipped", len(skipped))
	}

	return reply, nil
}

func (bot *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := bot.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}
