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

package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Unbewohnte/NTVbot/internal/article"

	"github.com/tealeg/xlsx"
)

var ErrMissingColumns = errors.New("spreadsheet has no title and url columns")

const (
	columnTitle       = "title"
	columnURL         = "url"
	columnPublishedAt = "publishedat"
	columnContent     = "content"
	columnDescription = "description"
	columnSource      = "source"
	columnAuthor      = "author"
)

var columnAliases = map[string]string{
	"title":          columnTitle,
	"headline":       columnTitle,
	"заголовок":      columnTitle,
	"url":            columnURL,
	"link":           columnURL,
	"ссылка":         columnURL,
	"publishedat":    columnPublishedAt,
	"published":      columnPublishedAt,
	"date":           columnPublishedAt,
	"pubdate":        columnPublishedAt,
	"дата":           columnPublishedAt,
	"датапубликации": columnPublishedAt,
	"content":        columnContent,
	"text":           columnContent,
	"body":           columnContent,
	"текст":          columnContent,
	"description":    columnDescription,
	"summary":        columnDescription,
	"source":         columnSource,
	"sourcename":     columnSource,
	"источник":       columnSource,
	"author":         columnAuthor,
	"автор":          columnAuthor,
}

// RowError describes a spreadsheet row that was not imported.
type RowError struct {
	Sheet string
	Row   int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err)
}

// Import reads raw articles from an .xlsx file. The first row of every sheet
// names the columns; title and url columns are required, the rest are
// optional. Rows failing validation are skipped and reported.
func Import(data []byte) ([]article.Raw, []RowError, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, fmt.Errorf("read xlsx: %w", err)
	}

	var (
		articles []article.Raw
		skipped  []RowError
		found    bool
	)
	for _, sheet := range xlFile.Sheets {
		if len(sheet.Rows) == 0 {
			continue
		}

		columns := mapColumns(sheet.Rows[0])
		if _, ok := columns[columnTitle]; !ok {
			continue
		}
		if _, ok := columns[columnURL]; !ok {
			continue
		}
		found = true

		for i, row := range sheet.Rows[1:] {
			if row == nil || isEmptyRow(row) {
				continue
			}

			raw, err := rowToArticle(row, columns)
			if err != nil {
				skipped = append(skipped, RowError{Sheet: sheet.Name, Row: i + 2, Err: err})
				continue
			}
			articles = append(articles, raw)
		}
	}

	if !found {
		return nil, nil, ErrMissingColumns
	}

	return articles, skipped, nil
}

func mapColumns(header *xlsx.Row) map[string]int {
	columns := make(map[string]int)
	for i, cell := range header.Cells {
		name := normalizeHeader(cell.String())
		if column, ok := columnAliases[name]; ok {
			if _, taken := columns[column]; !taken {
				columns[column] = i
			}
		}
	}
	return columns
}

func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(header)
}

func rowToArticle(row *xlsx.Row, columns map[string]int) (article.Raw, error) {
	value := func(column string) string {
		i, ok := columns[column]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	raw := article.Raw{
		Source:      article.Source{Name: value(columnSource)},
		Author:      article.StringPtr(value(columnAuthor)),
		Title:       value(columnTitle),
		Description: article.StringPtr(value(columnDescription)),
		URL:         value(columnURL),
		Content:     article.StringPtr(value(columnContent)),
	}

	if published := value(columnPublishedAt); published != "" {
		if t, err := ParseExcelDate(published); err == nil {
			raw.PublishedAt = t.UTC().Format(time.RFC3339)
		} else {
			raw.PublishedAt = published
		}
	}

	if err := raw.Validate(); err != nil {
		return article.Raw{}, err
	}
	return raw, nil
}

func isEmptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}
