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
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// NewBrowserFetcher renders pages in a headless Chrome instance. It is used
// for pages that refuse plain HTTP clients.
func NewBrowserFetcher(timeout time.Duration) PageFetcher {
	return func(ctx context.Context, pageURL string) ([]byte, error) {
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.UserAgent(randomUserAgent()),
			)...,
		)
		defer cancelAlloc()

		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
		defer cancelBrowser()

		browserCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
		defer cancelTimeout()

		var html string
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return nil, fmt.Errorf("browser fetch: %w", err)
		}

		body := []byte(html)
		if isProtectedPage(body) {
			return nil, ErrProtectedPage
		}

		return body, nil
	}
}
