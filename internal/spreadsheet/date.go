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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is day zero of the 1900 date system. 1899-12-30 rather than
// 12-31 because Excel counts the nonexistent 1900-02-29.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseExcelDate understands Excel serial numbers, RFC 3339 timestamps and
// the common day/month/year spellings.
func ParseExcelDate(cellValue string) (time.Time, error) {
	cellValue = strings.TrimSpace(cellValue)
	if cellValue == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if serial, err := strconv.ParseFloat(cellValue, 64); err == nil && serial > 0 {
		days := math.Floor(serial)
		seconds := math.Round((serial - days) * 24 * 60 * 60)
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second), nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02.01.2006",
		"02/01/2006",
		"01-02-2006",
		"01.02.2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, cellValue); err == nil {
			return t, nil
		}
	}

	// two digit years: 00-79 -> 2000-2079, 80-99 -> 1980-1999
	twoDigitYearFormats := []string{
		"02.01.06",
		"02/01/06",
		"01-02-06",
		"01.02.06",
		"02-01-06",
	}
	for _, format := range twoDigitYearFormats {
		t, err := time.Parse(format, cellValue)
		if err != nil {
			continue
		}
		year := t.Year() % 100
		if year >= 80 {
			year += 1900
		} else {
			year += 2000
		}
		return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %s", cellValue)
}
