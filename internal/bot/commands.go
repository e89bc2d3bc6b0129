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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/db"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/pipeline"
	"Unbewohnte/NTVbot/internal/spreadsheet"
)

const maxHeadlineLimit = 100

// Request is a parsed command invocation.
type Request struct {
	ChatID int64
	UserID int64
	Args   string
}

type Document struct {
	Name    string
	Caption string
	Data    []byte
}

// Reply is what the bot answers with. Text is Markdown.
type Reply struct {
	Text     string
	Document *Document
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

type Command struct {
	Name        string
	Description string
	Example     string
	Group       string
	Call        func(context.Context, Request) (Reply, error)
}

func (bot *Bot) NewCommand(cmd Command) {
	bot.commands = append(bot.commands, cmd)
}

func (bot *Bot) CommandByName(name string) *Command {
	for i := range bot.commands {
		if bot.commands[i].Name == name {
			return &bot.commands[i]
		}
	}

	return nil
}

func constructCommandHelpMessage(command Command) string {
	commandHelp := ""
	commandHelp += fmt.Sprintf("\n*Command:* \"%s\"\n*Description:* %s\n", command.Name, command.Description)
	if command.Example != "" {
		commandHelp += fmt.Sprintf("*Example:* `%s`\n", command.Example)
	}

	return commandHelp
}

func (bot *Bot) Help(_ context.Context, req Request) (Reply, error) {
	if name := strings.ToLower(strings.TrimSpace(req.Args)); name != "" {
		command := bot.CommandByName(name)
		if command != nil {
			return textReply(constructCommandHelpMessage(*command)), nil
		}
	}

	var helpMessage string

	commandsByGroup := make(map[string][]Command)
	for _, command := range bot.commands {
		commandsByGroup[command.Group] = append(commandsByGroup[command.Group], command)
	}

	groups := []string{}
	for g := range commandsByGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, group := range groups {
		helpMessage += fmt.Sprintf("\n\n*[%s]*\n", group)
		for _, command := range commandsByGroup[group] {
			helpMessage += constructCommandHelpMessage(command)
		}
	}

	return textReply(helpMessage), nil
}

func (bot *Bot) About(_ context.Context, _ Request) (Reply, error) {
	return textReply(`NTV bot (News Truthfulness Verification bot).

Scores news headlines and articles with a local BERT classifier. Every result gets a truth score from 0 to 100, a confidence value and a category.
Headlines can be pulled from NewsAPI or RSS feeds, links are extracted automatically and results can be exported to XLSX.

Source: https://github.com/Unbewohnte/NTVbot
License: GPLv3
`), nil
}

func (bot *Bot) Legend(_ context.Context, _ Request) (Reply, error) {
	// telegram markdown marks bold with a single asterisk
	return textReply(strings.ReplaceAll(bot.analyzer.Legend(), "**", "*")), nil
}

// headlineLimit picks the limit from the arguments, falling back to the
// chat's saved value.
func (bot *Bot) headlineLimit(ctx context.Context, req Request) (int, error) {
	if args := strings.TrimSpace(req.Args); args != "" {
		limit, err := strconv.Atoi(args)
		if err != nil || limit < 1 || limit > maxHeadlineLimit {
			return 0, newUsageError(fmt.Sprintf("The number of headlines must be between 1 and %d", maxHeadlineLimit))
		}
		return limit, nil
	}

	fallback := bot.conf.Headlines.DefaultLimit
	if fallback <= 0 {
		fallback = db.DefaultHeadlineLimit
	}

	database := bot.conf.GetDB()
	if database == nil {
		return fallback, nil
	}

	chatConf, err := database.GetChatConfig(ctx, req.ChatID, fallback)
	if err != nil {
		return 0, fmt.Errorf("load chat config: %w", err)
	}

	return chatConf.HeadlineLimit, nil
}

func (bot *Bot) News(ctx context.Context, req Request) (Reply, error) {
	limit, err := bot.headlineLimit(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	articles, err := bot.analyzer.News(ctx, limit)
	failed, partial := partialFailures(err)
	if err != nil && !partial {
		return Reply{}, err
	}

	if len(articles) == 0 && failed == 0 {
		return textReply("No headlines available right now, try again later."), nil
	}

	return textReply(formatNews(articles, failed)), nil
}

func (bot *Bot) Verify(ctx context.Context, req Request) (Reply, error) {
	headline, content, _ := strings.Cut(req.Args, "|")
	headline = strings.TrimSpace(headline)
	content = strings.TrimSpace(content)
	if headline == "" && content == "" {
		return Reply{}, newUsageError("Specify a headline, e.g. `verify Scientists discover water on Mars`")
	}

	result, err := bot.analyzer.Verify(ctx, headline, content)
	if err != nil {
		return Reply{}, err
	}

	return textReply(formatVerification(result)), nil
}

func (bot *Bot) VerifyURL(ctx context.Context, req Request) (Reply, error) {
	link := strings.TrimSpace(req.Args)
	if link == "" {
		return Reply{}, newUsageError("Specify a link, e.g. `url https://example.com/article`")
	}

	result, err := bot.analyzer.VerifyURL(ctx, link)
	if err != nil {
		return Reply{}, err
	}

	return textReply(formatVerification(result)), nil
}

func (bot *Bot) GenerateSpreadsheet(ctx context.Context, req Request) (Reply, error) {
	limit, err := bot.headlineLimit(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	articles, err := bot.analyzer.News(ctx, limit)
	failed, partial := partialFailures(err)
	if err != nil && !partial {
		return Reply{}, err
	}
	if len(articles) == 0 {
		return Reply{}, newUsageError("No headlines available right now, try again later")
	}

	return exportReply(articles, failed)
}

func exportReply(articles []article.Analyzed, failed int) (Reply, error) {
	fileBuffer, err := spreadsheet.Export(articles)
	if err != nil {
		return Reply{}, fmt.Errorf("generate spreadsheet: %w", err)
	}

	caption := fmt.Sprintf("Analyzed %d articles", len(articles))
	if failed > 0 {
		caption += fmt.Sprintf(", %d could not be analyzed", failed)
	}

	return Reply{
		Document: &Document{
			Name:    spreadsheet.FileName,
			Caption: caption,
			Data:    fileBuffer.Bytes(),
		},
	}, nil
}

func (bot *Bot) SetLimit(ctx context.Context, req Request) (Reply, error) {
	args := strings.TrimSpace(req.Args)
	if args == "" {
		return Reply{}, newUsageError("Specify the new number of headlines")
	}

	limit, err := strconv.Atoi(args)
	if err != nil || limit < 1 || limit > maxHeadlineLimit {
		return Reply{}, newUsageError(fmt.Sprintf("The number of headlines must be between 1 and %d", maxHeadlineLimit))
	}

	database := bot.conf.GetDB()
	if database == nil {
		return Reply{}, errors.New("database is not opened")
	}

	if err := database.SaveChatConfig(ctx, db.DefaultChatConfig(req.ChatID, limit)); err != nil {
		return Reply{}, fmt.Errorf("save chat config: %w", err)
	}

	return textReply(fmt.Sprintf("This chat now gets %d headlines by default.", limit)), nil
}

func parseUserID(args string) (int64, error) {
	if strings.TrimSpace(args) == "" {
		return 0, newUsageError("User ID is not specified")
	}

	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return 0, newUsageError("Invalid user ID")
	}

	return id, nil
}

func (bot *Bot) AddUser(_ context.Context, req Request) (Reply, error) {
	id, err := parseUserID(req.Args)
	if err != nil {
		return Reply{}, err
	}

	for _, allowedID := range bot.conf.Telegram.AllowedUserIDs {
		if id == allowedID {
			return textReply("This user is already allowed."), nil
		}
	}

	bot.conf.Telegram.AllowedUserIDs = append(bot.conf.Telegram.AllowedUserIDs, id)
	bot.saveConfig()

	return textReply("User added successfully"), nil
}

func (bot *Bot) RemoveUser(_ context.Context, req Request) (Reply, error) {
	id, err := parseUserID(req.Args)
	if err != nil {
		return Reply{}, err
	}

	found := false
	newAllowedUserIDs := []int64{}
	for _, allowedID := range bot.conf.Telegram.AllowedUserIDs {
		if allowedID == id {
			found = true
			continue
		}
		newAllowedUserIDs = append(newAllowedUserIDs, allowedID)
	}

	if !found {
		return Reply{}, newUsageError("The user is not in the allowed list")
	}

	bot.conf.Telegram.AllowedUserIDs = newAllowedUserIDs
	bot.saveConfig()

	return textReply("User removed successfully!"), nil
}

func (bot *Bot) TogglePublicity(_ context.Context, _ Request) (Reply, error) {
	bot.conf.Telegram.Public = !bot.conf.Telegram.Public
	bot.saveConfig()

	if bot.conf.Telegram.Public {
		return textReply("The bot is now available to everyone."), nil
	}
	return textReply("The bot is now available to allowed users only."), nil
}

func (bot *Bot) saveConfig() {
	if err := bot.conf.Update(); err != nil {
		bot.logger.Warn("Failed to save config", logging.Error(err))
	}
}

func (bot *Bot) PrintConfig(_ context.Context, _ Request) (Reply, error) {
	var response strings.Builder

	response.WriteString("*Current configuration*: \n")
	response.WriteString("\n*[ANALYSIS]*\n")
	response.WriteString(fmt.Sprintf("*Workers*: `%v`\n", bot.conf.Analysis.Concurrency))
	response.WriteString(fmt.Sprintf("*Abort batch on error*: `%v`\n", bot.conf.Analysis.AbortOnError))
	response.WriteString(fmt.Sprintf("*Thresholds*: True `%d`, Maybe True `%d`, Maybe False `%d`\n",
		bot.conf.Analysis.Thresholds.True,
		bot.conf.Analysis.Thresholds.MaybeTrue,
		bot.conf.Analysis.Thresholds.MaybeFalse,
	))
	response.WriteString(fmt.Sprintf("*Max sequence length*: `%v`\n", bot.conf.Model.MaxSeqLength))
	response.WriteString(fmt.Sprintf("*Article text limit*: `%v` characters\n", bot.conf.Extract.MaxContentSize))

	response.WriteString("\n*[HEADLINES]*\n")
	response.WriteString(fmt.Sprintf("*Provider*: `%v`\n", bot.conf.Headlines.Provider))
	response.WriteString(fmt.Sprintf("*Default limit*: `%v`\n", bot.conf.Headlines.DefaultLimit))
	response.WriteString(fmt.Sprintf("*Country*: `%v`\n", bot.conf.Headlines.NewsAPI.Country))
	response.WriteString(fmt.Sprintf("*Cache TTL*: `%v` seconds\n", bot.conf.Headlines.Cache.TTLSeconds))

	response.WriteString("\n*[GENERAL]*\n")
	response.WriteString(fmt.Sprintf("*Public?*: `%v`\n", bot.conf.Telegram.Public))
	response.WriteString(fmt.Sprintf("*Allowed users*: `%+v`\n", bot.conf.Telegram.AllowedUserIDs))

	response.WriteString("\n*[LLM]*\n")
	response.WriteString(fmt.Sprintf("*Explanations enabled?*: `%v`\n", bot.conf.Explain.Enabled))
	response.WriteString(fmt.Sprintf("*LLM*: `%v`\n", bot.conf.Explain.OllamaModel))
	response.WriteString(fmt.Sprintf("*LLM response time limit*: `%v` seconds\n", bot.conf.Explain.QueryTimeoutSeconds))

	return textReply(response.String()), nil
}

// partialFailures reports how many items failed when err is a batch error
// that still came with results.
func partialFailures(err error) (int, bool) {
	batchErr, ok := pipeline.IsBatchError(err)
	if !ok {
		return 0, false
	}

	return len(batchErr.Failures), true
}

func formatVerification(result article.Verification) string {
	var response strings.Builder

	if result.Headline != "" {
		response.WriteString(fmt.Sprintf("*Headline:* %s\n\n", result.Headline))
	}
	response.WriteString(fmt.Sprintf("*Truth score:* %d%% (%s)\n", result.TruthScore, result.TruthCategory))
	response.WriteString(fmt.Sprintf("*Confidence:* %d%%\n", result.Confidence))
	if result.Explanation != "" {
		response.WriteString(fmt.Sprintf("\n*Explanation:* %s\n", result.Explanation))
	}

	return response.String()
}

func formatNews(articles []article.Analyzed, failed int) string {
	var response strings.Builder

	response.WriteString(fmt.Sprintf("*Top %d headlines*\n", len(articles)))
	for i, art := range articles {
		response.WriteString(fmt.Sprintf("\n%d. [%s](%s)\n", i+1, art.Title, art.URL))
		response.WriteString(fmt.Sprintf("*%s* - score %d%%, confidence %d%%\n",
			art.TruthCategory, art.TruthScore, art.Confidence))

		meta := []string{}
		if art.Source.Name != "" {
			meta = append(meta, art.Source.Name)
		}
		if published, err := time.Parse(time.RFC3339, art.PublishedAt); err == nil {
			meta = append(meta, published.Format("02.01.2006 15:04"))
		}
		if len(meta) > 0 {
			response.WriteString(fmt.Sprintf("_%s_\n", strings.Join(meta, ", ")))
		}
	}

	if failed > 0 {
		response.WriteString(fmt.Sprintf("\n⚠️ %d articles could not be analyzed\n", failed))
	}

	return response.String()
}
