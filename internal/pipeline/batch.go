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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"

	"golang.org/x/sync/errgroup"
)

// ItemResult is the outcome of one batch item. Article always carries the
// input record; its score fields are set only when Err is nil.
type ItemResult struct {
	Index   int
	Article article.Analyzed
	Err     error
}

type ItemFailure struct {
	Index int
	Title string
	Err   error
}

// BatchError lists the items of a batch that could not be analyzed.
type BatchError struct {
	Total    int
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d articles failed analysis", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; #%d %q: %v", f.Index, f.Title, f.Err)
	}
	return b.String()
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Analyze scores every article and returns the results in input order.
// A failing item is skipped and reported in a *BatchError next to the
// successful results. With abort_on_error the first failure stops the batch
// and no results are returned.
func (a *Analyzer) Analyze(ctx context.Context, articles []article.Raw) ([]article.Analyzed, error) {
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	analyzed := make([]article.Analyzed, 0, len(articles))
	if len(articles) == 0 {
		return analyzed, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		batchErr = &BatchError{Total: len(articles)}
		abortErr error
	)
	a.process(ctx, articles, func(result ItemResult) bool {
		if result.Err == nil {
			analyzed = append(analyzed, result.Article)
			return true
		}

		batchErr.Failures = append(batchErr.Failures, ItemFailure{
			Index: result.Index,
			Title: result.Article.Title,
			Err:   result.Err,
		})
		if a.conf.AbortOnError {
			abortErr = fmt.Errorf("article #%d: %w", result.Index, result.Err)
			cancel()
			return false
		}
		return true
	})

	a.metrics.ObserveBatch(len(articles), len(batchErr.Failures))

	if abortErr != nil {
		a.logger.Error("Batch aborted", logging.Error(abortErr))
		return nil, abortErr
	}
	if len(batchErr.Failures) > 0 {
		a.logger.Warn("Batch finished with failures",
			logging.Int("total", len(articles)),
			logging.Int("failed", len(batchErr.Failures)),
		)
		return analyzed, batchErr
	}

	return analyzed, nil
}

// Stream analyzes articles and emits one result per input, in input order.
// The channel is closed after the last result. Callers that stop reading
// early must cancel ctx.
func (a *Analyzer) Stream(ctx context.Context, articles []article.Raw) <-chan ItemResult {
	out := make(chan ItemResult)

	go func() {
		defer close(out)

		if err := a.Initialize(ctx); err != nil {
			for i, raw := range articles {
				select {
				case out <- ItemResult{Index: i, Article: article.Analyzed{Raw: raw}, Err: err}:
				case <-ctx.Done():
					return
				}
			}
			return
		}

		a.process(ctx, articles, func(result ItemResult) bool {
			select {
			case out <- result:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return out
}

// process runs the bounded worker pool. Results land in indexed slots and
// are handed to emit strictly in input order. Returning false from emit
// stops scheduling; items not yet started then fail with the context error.
// With Concurrency 1 every item is predicted and emitted before the next
// one starts.
func (a *Analyzer) process(ctx context.Context, articles []article.Raw, emit func(ItemResult) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ItemResult, len(articles))
	done := make([]chan struct{}, len(articles))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var group errgroup.Group
	group.SetLimit(a.conf.Concurrency)

	// a slot is taken when an item starts and freed once it is emitted,
	// so no item starts before emit has seen the one Concurrency places back
	slots := make(chan struct{}, a.conf.Concurrency)

	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i, raw := range articles {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
			}
			if err := ctx.Err(); err != nil {
				results[i] = ItemResult{Index: i, Article: article.Analyzed{Raw: raw}, Err: err}
				close(done[i])
				continue
			}

			group.Go(func() error {
				results[i] = a.analyzeItem(ctx, i, raw)
				close(done[i])
				return nil
			})
		}
	}()

	for i := range articles {
		<-done[i]
		if !emit(results[i]) {
			cancel()
			break
		}
		<-slots
	}

	<-scheduled
	_ = group.Wait()
}

// IsBatchError reports whether err carries per-item batch failures.
func IsBatchError(err error) (*BatchError, bool) {
	var batchErr *BatchError
	ok := errors.As(err, &batchErr)
	return batchErr, ok
}
