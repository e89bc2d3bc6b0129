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
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/scoring"
	"Unbewohnte/NTVbot/internal/spreadsheet"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "", errors.New("no files in tests")
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var texts []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

type fakeAnalyzer struct {
	headlines     []article.Raw
	failTitle     string
	err           error
	lastHeadline  string
	lastContent   string
	lastURL       string
	lastLimit     int
	analyzedCount int
}

func (f *fakeAnalyzer) Verify(_ context.Context, headline, content string) (article.Verification, error) {
	f.lastHeadline, f.lastContent = headline, content
	if f.err != nil {
		return article.Verification{}, f.err
	}
	return article.Verification{
		Headline:      headline,
		Content:       content,
		TruthScore:    80,
		TruthCategory: scoring.CategoryMaybeTrue,
		Confidence:    20,
		Explanation:   "Sounds plausible",
	}, nil
}

func (f *fakeAnalyzer) VerifyURL(ctx context.Context, pageURL string) (article.Verification, error) {
	f.lastURL = pageURL
	return f.Verify(ctx, "Page title", "")
}

func (f *fakeAnalyzer) News(ctx context.Context, limit int) ([]article.Analyzed, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	raws := f.headlines
	if limit < len(raws) {
		raws = raws[:limit]
	}
	return f.Analyze(ctx, raws)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, raws []article.Raw) ([]article.Analyzed, error) {
	f.analyzedCount += len(raws)

	analyzed := []article.Analyzed{}
	batchErr := &pipeline.BatchError{Total: len(raws)}
	for i, raw := range raws {
		if raw.Title == f.failTitle {
			batchErr.Failures = append(batchErr.Failures, pipeline.ItemFailure{Index: i, Title: raw.Title, Err: errors.New("boom")})
			continue
		}
		analyzed = append(analyzed, article.Analyzed{
			Raw:           raw,
			TruthScore:    100,
			TruthCategory: scoring.CategoryTrue,
			Confidence:    90,
		})
	}
	if len(batchErr.Failures) > 0 {
		return analyzed, batchErr
	}
	return analyzed, nil
}

func (f *fakeAnalyzer) Legend() string {
	return scoring.DefaultThresholds().Legend()
}

func testHeadlines() []article.Raw {
	return []article.Raw{
		{Title: "Storm hits coast", URL: "https://example.com/storm", PublishedAt: "2025-06-01T10:00:00Z", Source: article.Source{Name: "BBC News"}},
		{Title: "Markets rally", URL: "https://example.com/markets", PublishedAt: "2025-06-01T09:00:00Z"},
		{Title: "Broken item", URL: "https://example.com/broken", PublishedAt: "2025-06-01T08:00:00Z"},
	}
}

func newTestBot(t *testing.T, analyzer Analyzer) (*Bot, *fakeAPI) {
	t.Helper()

	conf := DefaultConfig()
	conf.DB.File = filepath.Join(t.TempDir(), "test.sqlite3")
	_, err := conf.OpenDB()
	require.NoError(t, err)
	t.Cleanup(func() { conf.GetDB().Close() })

	require.NoError(t, conf.Save(filepath.Join(t.TempDir(), "config.json")))

	api := &fakeAPI{}
	bot := newBot(conf, analyzer, logging.NewNop())
	bot.api = api

	return bot, api
}

func message(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      text,
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input, name, args string
	}{
		{"help", "help", ""},
		{"/help verify", "help", "verify"},
		{"/News@NTVbot 5", "news", "5"},
		{"verify  Water on Mars | ice ", "verify", "Water on Mars | ice"},
		{"  setlimit 3  ", "setlimit", "3"},
	}

	for _, tt := range tests {
		name, args := parseCommand(tt.input)
		assert.Equal(t, tt.name, name, tt.input)
		assert.Equal(t, tt.args, args, tt.input)
	}
}

func TestMinDistance(t *testing.T) {
	assert.Equal(t, 0, minDistance("help", "help"))
	assert.Equal(t, 2, minDistance("hlep", "help"))
	assert.Equal(t, 3, minDistance("", "url"))
	assert.Equal(t, 1, minDistance("новости", "новостb"))
}

func TestFindSimilarCommands(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})

	suggestions := bot.findSimilarCommands("nws")
	require.Len(t, suggestions, 3)
	assert.Equal(t, "news", suggestions[0])
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, chunks)

	chunks = splitMessage(strings.Repeat("я", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("я", 10), chunks[0])
	assert.Equal(t, strings.Repeat("я", 5), chunks[2])
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Analysis failed, please retry", userMessage(errors.New("onnx: out of memory")))
	assert.Equal(t, "Invalid user ID", userMessage(newUsageError("Invalid user ID")))
	assert.Contains(t, userMessage(pipeline.ErrEmptyText), "empty")
	assert.Contains(t, userMessage(spreadsheet.ErrMissingColumns), "title and url")
}

func TestHelp(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})

	reply, err := bot.Help(context.Background(), Request{})
	require.NoError(t, err)
	for _, group := range []string{"[Analysis]", "[General]", "[Spreadsheets]", "[Telegram]"} {
		assert.Contains(t, reply.Text, group)
	}
	assert.Less(t, strings.Index(reply.Text, "[Analysis]"), strings.Index(reply.Text, "[General]"))

	reply, err = bot.Help(context.Background(), Request{Args: "verify"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "\"verify\"")
	assert.NotContains(t, reply.Text, "\"news\"")
}

func TestLegendUsesTelegramBold(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})

	reply, err := bot.Legend(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "*True*")
	assert.NotContains(t, reply.Text, "**")
}

func TestVerifyCommand(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, _ := newTestBot(t, analyzer)

	reply, err := bot.Verify(context.Background(), Request{Args: "Water on Mars | The rover found ice"})
	require.NoError(t, err)
	assert.Equal(t, "Water on Mars", analyzer.lastHeadline)
	assert.Equal(t, "The rover found ice", analyzer.lastContent)
	assert.Contains(t, reply.Text, "*Truth score:* 80% (Maybe True)")
	assert.Contains(t, reply.Text, "*Confidence:* 20%")
	assert.Contains(t, reply.Text, "Sounds plausible")

	_, err = bot.Verify(context.Background(), Request{Args: " | "})
	assert.ErrorIs(t, err, errUsage)
}

func TestVerifyURLCommand(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, _ := newTestBot(t, analyzer)

	_, err := bot.VerifyURL(context.Background(), Request{Args: ""})
	assert.ErrorIs(t, err, errUsage)

	reply, err := bot.VerifyURL(context.Background(), Request{Args: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", analyzer.lastURL)
	assert.Contains(t, reply.Text, "Page title")
}

func TestNewsCommand(t *testing.T) {
	analyzer := &fakeAnalyzer{headlines: testHeadlines(), failTitle: "Broken item"}
	bot, _ := newTestBot(t, analyzer)

	reply, err := bot.News(context.Background(), Request{ChatID: 7, Args: "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, analyzer.lastLimit)
	assert.Contains(t, reply.Text, "1. [Storm hits coast](https://example.com/storm)")
	assert.Contains(t, reply.Text, "*True* - score 100%, confidence 90%")
	assert.Contains(t, reply.Text, "_BBC News, 01.06.2025 10:00_")
	assert.Contains(t, reply.Text, "2. [Markets rally]")
	assert.Contains(t, reply.Text, "1 articles could not be analyzed")

	_, err = bot.News(context.Background(), Request{ChatID: 7, Args: "0"})
	assert.ErrorIs(t, err, errUsage)
}

func TestNewsNoHeadlines(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})

	reply, err := bot.News(context.Background(), Request{ChatID: 7})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "No headlines")
}

func TestNewsFailure(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{err: errors.New("model missing")})

	_, err := bot.News(context.Background(), Request{ChatID: 7, Args: "2"})
	assert.Error(t, err)
}

func TestSetLimitIsUsedByNews(t *testing.T) {
	analyzer := &fakeAnalyzer{headlines: testHeadlines()}
	bot, _ := newTestBot(t, analyzer)

	_, err := bot.News(context.Background(), Request{ChatID: 7})
	require.NoError(t, err)
	assert.Equal(t, bot.conf.Headlines.DefaultLimit, analyzer.lastLimit)

	reply, err := bot.SetLimit(context.Background(), Request{ChatID: 7, Args: "2"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "2 headlines")

	_, err = bot.News(context.Background(), Request{ChatID: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, analyzer.lastLimit)

	// other chats keep the default
	_, err = bot.News(context.Background(), Request{ChatID: 8})
	require.NoError(t, err)
	assert.Equal(t, bot.conf.Headlines.DefaultLimit, analyzer.lastLimit)

	for _, args := range []string{"", "zero", "0", "101"} {
		_, err = bot.SetLimit(context.Background(), Request{ChatID: 7, Args: args})
		assert.ErrorIs(t, err, errUsage, args)
	}
}

func TestGenerateSpreadsheet(t *testing.T) {
	analyzer := &fakeAnalyzer{headlines: testHeadlines(), failTitle: "Broken item"}
	bot, _ := newTestBot(t, analyzer)

	reply, err := bot.GenerateSpreadsheet(context.Background(), Request{ChatID: 7, Args: "3"})
	require.NoError(t, err)
	require.NotNil(t, reply.Document)
	assert.Equal(t, spreadsheet.FileName, reply.Document.Name)
	assert.Equal(t, "Analyzed 2 articles, 1 could not be analyzed", reply.Document.Caption)

	articles, _, err := spreadsheet.Import(reply.Document.Data)
	require.NoError(t, err)
	assert.Len(t, articles, 2)
}

func TestAnalyzeSpreadsheet(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, _ := newTestBot(t, analyzer)

	var input []article.Analyzed
	for _, raw := range testHeadlines()[:2] {
		input = append(input, article.Analyzed{Raw: raw})
	}
	buf, err := spreadsheet.Export(input)
	require.NoError(t, err)

	reply, err := bot.AnalyzeSpreadsheet(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, analyzer.analyzedCount)
	require.NotNil(t, reply.Document)
	assert.Equal(t, "Analyzed 2 articles", reply.Document.Caption)

	_, err = bot.AnalyzeSpreadsheet(context.Background(), []byte("not a spreadsheet"))
	assert.Error(t, err)
}

func TestUserManagement(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})
	ctx := context.Background()

	_, err := bot.AddUser(ctx, Request{Args: "abc"})
	assert.ErrorIs(t, err, errUsage)

	reply, err := bot.AddUser(ctx, Request{Args: "5293210034"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "added")
	assert.Equal(t, []int64{5293210034}, bot.conf.Telegram.AllowedUserIDs)

	reply, err = bot.AddUser(ctx, Request{Args: "5293210034"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "already")
	assert.Len(t, bot.conf.Telegram.AllowedUserIDs, 1)

	saved, err := ConfigFrom(CONFIG_PATH)
	require.NoError(t, err)
	assert.Equal(t, []int64{5293210034}, saved.Telegram.AllowedUserIDs)

	_, err = bot.RemoveUser(ctx, Request{Args: "1"})
	assert.ErrorIs(t, err, errUsage)

	_, err = bot.RemoveUser(ctx, Request{Args: "5293210034"})
	require.NoError(t, err)
	assert.Empty(t, bot.conf.Telegram.AllowedUserIDs)
}

func TestTogglePublicity(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})
	require.True(t, bot.conf.Telegram.Public)

	_, err := bot.TogglePublicity(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, bot.conf.Telegram.Public)
	assert.False(t, bot.isAllowed(1))

	bot.conf.Telegram.AllowedUserIDs = []int64{1}
	assert.True(t, bot.isAllowed(1))
	assert.False(t, bot.isAllowed(2))

	_, err = bot.TogglePublicity(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, bot.isAllowed(2))
}

func TestPrintConfig(t *testing.T) {
	bot, _ := newTestBot(t, &fakeAnalyzer{})

	reply, err := bot.PrintConfig(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "*Provider*: `newsapi`")
	assert.Contains(t, reply.Text, "True `85`")
	assert.NotContains(t, reply.Text, bot.conf.Telegram.ApiToken)
}

func TestHandleMessageRejectsStrangers(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, api := newTestBot(t, analyzer)
	bot.conf.Telegram.Public = false

	bot.handleMessage(context.Background(), message(99, "verify Water on Mars"))

	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "not allowed")
	assert.Empty(t, analyzer.lastHeadline)
}

func TestHandleMessageDispatch(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, api := newTestBot(t, analyzer)

	bot.handleMessage(context.Background(), message(1, "/verify Water on Mars"))
	assert.Equal(t, "Water on Mars", analyzer.lastHeadline)
	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "Truth score")
}

func TestHandleMessageBareLink(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	bot, _ := newTestBot(t, analyzer)

	bot.handleMessage(context.Background(), message(1, "https://example.com/article"))
	assert.Equal(t, "https://example.com/article", analyzer.lastURL)
}

func TestHandleMessageSuggestions(t *testing.T) {
	bot, api := newTestBot(t, &fakeAnalyzer{})

	bot.handleMessage(context.Background(), message(1, "verfy something"))

	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "Unknown command")
	assert.Contains(t, api.texts()[0], "`verify`")
}

func TestHandleMessageHidesInternalErrors(t *testing.T) {
	bot, api := newTestBot(t, &fakeAnalyzer{err: errors.New("onnx session: out of memory")})

	bot.handleMessage(context.Background(), message(1, "verify Water on Mars"))

	require.Len(t, api.texts(), 1)
	assert.Equal(t, "❌ Analysis failed, please retry", api.texts()[0])
}

func TestHandleDocumentRejectsOtherFormats(t *testing.T) {
	bot, api := newTestBot(t, &fakeAnalyzer{})

	msg := message(1, "")
	msg.Document = &tgbotapi.Document{FileID: "f", FileName: "notes.txt"}
	bot.handleMessage(context.Background(), msg)

	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], ".xlsx")
}
