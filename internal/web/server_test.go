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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/extract"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/scoring"
	"Unbewohnte/NTVbot/internal/spreadsheet"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	headlines []article.Raw
	failTitle string
	verifyErr error
	fetchErr  error
	lastLimit int
}

func (f *fakeAnalyzer) score(raw article.Raw) (article.Analyzed, error) {
	if raw.Title == f.failTitle {
		return article.Analyzed{}, errors.New("model exploded")
	}
	return article.Analyzed{
		Raw:           raw,
		TruthScore:    90,
		TruthCategory: scoring.CategoryTrue,
		Confidence:    80,
	}, nil
}

func (f *fakeAnalyzer) Ready() bool    { return true }
func (f *fakeAnalyzer) Legend() string { return scoring.DefaultThresholds().Legend() }

func (f *fakeAnalyzer) Verify(_ context.Context, headline, content string) (article.Verification, error) {
	if f.verifyErr != nil {
		return article.Verification{}, f.verifyErr
	}
	if strings.TrimSpace(headline+content) == "" {
		return article.Verification{}, pipeline.ErrEmptyText
	}
	return article.Verification{
		Headline:      headline,
		Content:       content,
		TruthScore:    70,
		TruthCategory: scoring.CategoryMaybeTrue,
		Confidence:    40,
	}, nil
}

func (f *fakeAnalyzer) VerifyURL(ctx context.Context, pageURL string) (article.Verification, error) {
	if f.verifyErr != nil {
		return article.Verification{}, f.verifyErr
	}
	return f.Verify(ctx, "Extracted from "+pageURL, "")
}

func (f *fakeAnalyzer) FetchHeadlines(_ context.Context, limit int) ([]article.Raw, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.headlines) {
		return f.headlines[:limit], nil
	}
	return f.headlines, nil
}

func (f *fakeAnalyzer) News(ctx context.Context, limit int) ([]article.Analyzed, error) {
	raws, err := f.FetchHeadlines(ctx, limit)
	if err != nil {
		return nil, err
	}
	return f.Analyze(ctx, raws)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, raws []article.Raw) ([]article.Analyzed, error) {
	analyzed := []article.Analyzed{}
	batchErr := &pipeline.BatchError{Total: len(raws)}
	for i, raw := range raws {
		a, err := f.score(raw)
		if err != nil {
			batchErr.Failures = append(batchErr.Failures, pipeline.ItemFailure{Index: i, Title: raw.Title, Err: err})
			continue
		}
		analyzed = append(analyzed, a)
	}
	if len(batchErr.Failures) > 0 {
		return analyzed, batchErr
	}
	return analyzed, nil
}

func (f *fakeAnalyzer) Stream(ctx context.Context, raws []article.Raw) <-chan pipeline.ItemResult {
	out := make(chan pipeline.ItemResult)
	go func() {
		defer close(out)
		for i, raw := range raws {
			a, err := f.score(raw)
			if err == nil {
				a.Raw = raw
			}
			select {
			case out <- pipeline.ItemResult{Index: i, Article: a, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func headlines() []article.Raw {
	return []article.Raw{
		{Title: "Storm hits coast", URL: "https://example.com/storm", PublishedAt: "2025-06-01T10:00:00Z", Source: article.Source{Name: "BBC"}},
		{Title: "Markets rally", URL: "https://example.com/markets", PublishedAt: "2025-06-01T09:00:00Z"},
		{Title: "Broken item", URL: "https://example.com/broken", PublishedAt: "2025-06-01T08:00:00Z"},
	}
}

func newTestServer(analyzer Analyzer) *Server {
	return NewServer(analyzer, Config{Port: 0, DefaultLimit: 2}, logging.NewNop(), metrics.New())
}

func do(t *testing.T, srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Ready)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestHeadlines(t *testing.T) {
	analyzer := &fakeAnalyzer{headlines: headlines()}
	srv := newTestServer(analyzer)

	rec := do(t, srv, http.MethodGet, "/api/headlines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, analyzer.lastLimit)

	var raws []article.Raw
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raws))
	require.Len(t, raws, 2)
	assert.Equal(t, "Storm hits coast", raws[0].Title)

	rec = do(t, srv, http.MethodGet, "/api/headlines?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, analyzer.lastLimit)
}

func TestHeadlinesInvalidLimit(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{headlines: headlines()})

	for _, limit := range []string{"0", "abc", "101", "-3"} {
		rec := do(t, srv, http.MethodGet, "/api/headlines?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestHeadlinesNoSource(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{fetchErr: pipeline.ErrNoSource})

	rec := do(t, srv, http.MethodGet, "/api/headlines", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNewsPartialFailure(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{headlines: headlines(), failTitle: "Broken item"})

	rec := do(t, srv, http.MethodGet, "/api/news?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Articles, 2)
	assert.Equal(t, "Storm hits coast", resp.Articles[0].Title)
	assert.Equal(t, "Markets rally", resp.Articles[1].Title)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, 2, resp.Failures[0].Index)
	assert.NotContains(t, resp.Failures[0].Error, "exploded")
}

func TestAnalyze(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	body, err := json.Marshal(headlines()[:2])
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Articles, 2)
	assert.Equal(t, 90, resp.Articles[0].TruthScore)
	assert.Empty(t, resp.Failures)
}

func TestAnalyzeEmpty(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/analyze", []byte("[]"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Articles)
	assert.NotNil(t, resp.Articles)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/analyze", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/analyze", []byte(`[{"title":"","url":"https://example.com"}]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "article #0")
}

func TestVerify(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/verify", []byte(`{"headline":"Water on Mars","content":"The rover found ice"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var result article.Verification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Water on Mars", result.Headline)
	assert.Equal(t, "The rover found ice", result.Content)
	assert.Equal(t, 70, result.TruthScore)
	assert.Equal(t, scoring.CategoryMaybeTrue, result.TruthCategory)
}

func TestVerifyEmptyText(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/verify", []byte(`{"headline":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyInternalErrorIsHidden(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{verifyErr: errors.New("onnx session: out of memory")})

	rec := do(t, srv, http.MethodPost, "/api/verify", []byte(`{"headline":"Water on Mars"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "analysis failed, please retry", resp.Error)
	assert.Equal(t, rec.Header().Get(requestIDHeader), resp.RequestID)
}

func TestVerifyURL(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/verify/url", []byte(`{"url":"https://example.com/a"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Extracted from https://example.com/a")

	rec = do(t, srv, http.MethodPost, "/api/verify/url", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyURLProtectedPage(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{verifyErr: extract.ErrProtectedPage})

	rec := do(t, srv, http.MethodPost, "/api/verify/url", []byte(`{"url":"https://example.com/a"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeXLSX(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{failTitle: "Broken item"})

	var input []article.Analyzed
	for _, raw := range headlines() {
		input = append(input, article.Analyzed{Raw: raw})
	}
	upload, err := spreadsheet.Export(input)
	require.NoError(t, err)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "headlines.xlsx")
	require.NoError(t, err)
	_, err = part.Write(upload.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/xlsx", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, spreadsheet.MIMEType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Failed-Articles"))
	assert.Equal(t, "0", rec.Header().Get("X-Skipped-Rows"))

	results, _, err := spreadsheet.Import(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Storm hits coast", results[0].Title)
}

func TestAnalyzeXLSXMissingFile(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodPost, "/api/analyze/xlsx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLegend(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})

	rec := do(t, srv, http.MethodGet, "/legend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<strong>True</strong>")
	assert.Contains(t, rec.Body.String(), "<li>")
}

func TestRenderMarkdownDropsRawHTML(t *testing.T) {
	html, err := RenderMarkdown("**bold** <script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveCategory(string(scoring.CategoryTrue))
	srv := NewServer(&fakeAnalyzer{}, Config{}, logging.NewNop(), m)

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ntvbot_truth_category_total")
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn
}

func TestWebSocketAnalyzeStreamsInOrder(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{headlines: headlines(), failTitle: "Broken item"})
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: wsTypeAnalyze, ID: "batch-1", Limit: 3}))

	var messages []wsMessage
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		messages = append(messages, msg)
		if msg.Type == wsTypeDone {
			break
		}
	}

	require.Len(t, messages, 4)
	assert.Equal(t, wsTypeArticle, messages[0].Type)
	assert.Equal(t, 0, messages[0].Index)
	require.NotNil(t, messages[0].Article)
	assert.Equal(t, "Storm hits coast", messages[0].Article.Title)

	assert.Equal(t, wsTypeArticle, messages[1].Type)
	assert.Equal(t, 1, messages[1].Index)

	assert.Equal(t, wsTypeError, messages[2].Type)
	assert.Equal(t, 2, messages[2].Index)

	done := messages[3]
	assert.Equal(t, "batch-1", done.ID)
	assert.Equal(t, 3, done.Total)
	assert.Equal(t, 1, done.Failed)
}

func TestWebSocketVerify(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: wsTypeVerify, Headline: "Water on Mars"}))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsTypeVerification, msg.Type)
	assert.NotEmpty(t, msg.ID)
	require.NotNil(t, msg.Verification)
	assert.Equal(t, 70, msg.Verification.TruthScore)
}

func TestWebSocketUnknownType(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{})
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: "dance", ID: "x"}))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsTypeError, msg.Type)
	assert.Equal(t, "x", msg.ID)
}
