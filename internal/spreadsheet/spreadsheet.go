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
	"bytes"
	"fmt"

	"Unbewohnte/NTVbot/internal/article"

	"github.com/tealeg/xlsx/v3"
)

const (
	SheetName = "Results"
	FileName  = "NTVbot_Results.xlsx"
	MIMEType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeaders = []string{
	"Published At", "Source", "Title", "URL", "Content",
	"Truth Score", "Confidence", "Category",
}

// Export writes analyzed articles into an in-memory Excel file, one row
// per article in the given order.
func Export(articles []article.Analyzed) (*bytes.Buffer, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, h := range exportHeaders {
		headerRow.AddCell().SetString(h)
	}

	for _, art := range articles {
		row := sheet.AddRow()

		if published, err := ParseExcelDate(art.PublishedAt); err == nil {
			row.AddCell().SetDateTime(published)
		} else {
			row.AddCell().SetString(art.PublishedAt)
		}

		row.AddCell().SetString(art.Source.Name)
		row.AddCell().SetString(art.Title)
		row.AddCell().SetString(art.URL)
		row.AddCell().SetString(art.ContentText())
		row.AddCell().SetInt(art.TruthScore)
		row.AddCell().SetInt(art.Confidence)
		row.AddCell().SetString(string(art.TruthCategory))
	}

	buf := new(bytes.Buffer)
	if err := file.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf, nil
}
