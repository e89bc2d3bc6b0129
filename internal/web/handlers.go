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

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/extract"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/spreadsheet"
)

const maxLimit = 100

type healthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

type verifyRequest struct {
	Headline string `json:"headline"`
	Content  string `json:"content"`
}

type verifyURLRequest struct {
	URL string `json:"url"`
}

type failureResponse struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

type analyzeResponse struct {
	Articles []article.Analyzed `json:"articles"`
	Total    int                `json:"total"`
	Failures []failureResponse  `json:"failures,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Ready: s.analyzer.Ready()})
}

func (s *Server) limitParam(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return s.conf.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}

	return limit, nil
}

func (s *Server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	limit, err := s.limitParam(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	articles, err := s.analyzer.FetchHeadlines(r.Context(), limit)
	if err != nil {
		s.failAnalysis(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit, err := s.limitParam(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	analyzed, err := s.analyzer.News(r.Context(), limit)
	s.writeBatch(w, r, analyzed, err)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var articles []article.Raw
	if err := s.decodeJSON(w, r, &articles); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	for i, raw := range articles {
		if err := raw.Validate(); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("article #%d: %v", i, err))
			return
		}
	}

	analyzed, err := s.analyzer.Analyze(r.Context(), articles)
	s.writeBatch(w, r, analyzed, err)
}

// writeBatch answers with the successful results and, for partial
// failures, the list of items that failed.
func (s *Server) writeBatch(w http.ResponseWriter, r *http.Request, analyzed []article.Analyzed, err error) {
	batchErr, partial := pipeline.IsBatchError(err)
	if err != nil && !partial {
		s.failAnalysis(w, r, err)
		return
	}

	resp := analyzeResponse{Articles: analyzed, Total: len(analyzed)}
	if analyzed == nil {
		resp.Articles = []article.Analyzed{}
	}
	if partial {
		resp.Total = batchErr.Total
		for _, f := range batchErr.Failures {
			resp.Failures = append(resp.Failures, failureResponse{
				Index: f.Index,
				Title: f.Title,
				Error: "analysis failed",
			})
		}
		s.logger.Warn("Batch finished with failures",
			logging.String("request_id", requestIDFrom(r.Context())),
			logging.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	result, err := s.analyzer.Verify(r.Context(), req.Headline, req.Content)
	if err != nil {
		s.failAnalysis(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerifyURL(w http.ResponseWriter, r *http.Request) {
	var req verifyURLRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.URL == "" {
		s.writeError(w, r, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.analyzer.VerifyURL(r.Context(), req.URL)
	if err != nil {
		s.failAnalysis(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyzeXLSX(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.conf.MaxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "failed to read upload")
		return
	}

	articles, skipped, err := spreadsheet.Import(data)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	analyzed, err := s.analyzer.Analyze(r.Context(), articles)
	batchErr, partial := pipeline.IsBatchError(err)
	if err != nil && !partial {
		s.failAnalysis(w, r, err)
		return
	}

	buf, err := spreadsheet.Export(analyzed)
	if err != nil {
		s.failAnalysis(w, r, err)
		return
	}

	failed := 0
	if partial {
		failed = len(batchErr.Failures)
	}

	w.Header().Set("Content-Type", spreadsheet.MIMEType)
	w.Header().Set("Content-Disposition", "attachment; filename="+spreadsheet.FileName)
	w.Header().Set("X-Skipped-Rows", strconv.Itoa(len(skipped)))
	w.Header().Set("X-Failed-Articles", strconv.Itoa(failed))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	body, err := RenderMarkdown(s.analyzer.Legend())
	if err != nil {
		s.logger.Error("Failed to render legend", logging.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, legendPage, body)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.conf.MaxUploadSize))
	return decoder.Decode(v)
}

// failAnalysis maps pipeline errors to statuses. Internal causes are
// logged with the request ID and not returned.
func (s *Server) failAnalysis(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyText):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, extract.ErrProtectedPage), errors.Is(err, extract.ErrNotEnoughText):
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, pipeline.ErrNoSource), errors.Is(err, pipeline.ErrNoExtract):
		s.writeError(w, r, http.StatusNotImplemented, err.Error())
		return
	}

	s.logger.Error("Analysis failed",
		logging.String("request_id", requestIDFrom(r.Context())),
		logging.String("path", r.URL.Path),
		logging.Error(err),
	)
	s.writeError(w, r, http.StatusInternalServerError, "analysis failed, please retry")
}
