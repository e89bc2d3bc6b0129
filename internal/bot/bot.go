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
	"strings"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Analyzer is the part of the analysis pipeline the bot talks to.
type Analyzer interface {
	Verify(ctx context.Context, headline, content string) (article.Verification, error)
	VerifyURL(ctx context.Context, pageURL string) (article.Verification, error)
	News(ctx context.Context, limit int) ([]article.Analyzed, error)
	Analyze(ctx context.Context, articles []article.Raw) ([]article.Analyzed, error)
	Legend() string
}

// telegramAPI covers the calls made while answering a message.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Bot struct {
	client   *tgbotapi.BotAPI
	api      telegramAPI
	conf     *Config
	analyzer Analyzer
	logger   logging.Logger
	commands []Command
}

func NewBot(config *Config, analyzer Analyzer, logger logging.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(config.Telegram.ApiToken)
	if err != nil {
		return nil, err
	}
	client.Debug = config.Debug

	bot := newBot(config, analyzer, logger)
	bot.client = client
	bot.api = client

	return bot, nil
}

func newBot(config *Config, analyzer Analyzer, logger logging.Logger) *Bot {
	if logger == nil {
		logger = logging.NewNop()
	}

	bot := &Bot{
		conf:     config,
		analyzer: analyzer,
		logger:   logger.With(logging.String("component", "bot")),
	}
	bot.Init()

	return bot
}

func (bot *Bot) Init() {
	bot.commands = nil

	bot.NewCommand(Command{
		Name:        "help",
		Description: "Print the help message",
		Example:     "help verify",
		Group:       "General",
		Call:        bot.Help,
	})

	bot.NewCommand(Command{
		Name:        "about",
		Description: "Print information about the bot",
		Group:       "General",
		Call:        bot.About,
	})

	bot.NewCommand(Command{
		Name:        "legend",
		Description: "Explain truth score categories",
		Group:       "General",
		Call:        bot.Legend,
	})

	bot.NewCommand(Command{
		Name:        "conf",
		Description: "Print the current configuration",
		Group:       "General",
		Call:        bot.PrintConfig,
	})

	bot.NewCommand(Command{
		Name:        "news",
		Description: "Fetch top headlines and score each of them",
		Example:     "news 5",
		Group:       "Analysis",
		Call:        bot.News,
	})

	bot.NewCommand(Command{
		Name:        "verify",
		Description: "Score a headline with optional article text separated by |",
		Example:     "verify Scientists discover water on Mars | The rover found ...",
		Group:       "Analysis",
		Call:        bot.Verify,
	})

	bot.NewCommand(Command{
		Name:        "url",
		Description: "Extract an article from a web page and score it. Sending a bare link does the same",
		Example:     "url https://example.com/article",
		Group:       "Analysis",
		Call:        bot.VerifyURL,
	})

	bot.NewCommand(Command{
		Name:        "xlsx",
		Description: "Score top headlines and send the results as an XLSX file. Send an .xlsx file with title and url columns to score its rows instead",
		Example:     "xlsx 20",
		Group:       "Spreadsheets",
		Call:        bot.GenerateSpreadsheet,
	})

	bot.NewCommand(Command{
		Name:        "setlimit",
		Description: "Change how many headlines this chat gets by default",
		Example:     "setlimit 5",
		Group:       "Analysis",
		Call:        bot.SetLimit,
	})

	bot.NewCommand(Command{
		Name:        "togglepublic",
		Description: "Switch between public and private access to the bot",
		Group:       "Telegram",
		Call:        bot.TogglePublicity,
	})

	bot.NewCommand(Command{
		Name:        "adduser",
		Description: "Allow a user to talk to the bot by ID (ask @userinfobot for yours)",
		Example:     "adduser 5293210034",
		Group:       "Telegram",
		Call:        bot.AddUser,
	})

	bot.NewCommand(Command{
		Name:        "rmuser",
		Description: "Revoke access from a user by ID",
		Example:     "rmuser 5293210034",
		Group:       "Telegram",
		Call:        bot.RemoveUser,
	})
}

// Start polls Telegram for updates until ctx is cancelled, reconnecting
// with exponential backoff whenever the update channel closes.
func (bot *Bot) Start(ctx context.Context) error {
	if bot.client == nil {
		return errors.New("telegram client is not initialized")
	}

	bot.logger.Info("Bot authorized", logging.String("username", bot.client.Self.UserName))

	retryDelay := 5 * time.Second
	for {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.client.GetUpdatesChan(u)

	loop:
		for {
			select {
			case <-ctx.Done():
				bot.client.StopReceivingUpdates()
				return ctx.Err()
			case update, ok := <-updates:
				if !ok {
					break loop
				}
				if update.Message == nil {
					continue
				}
				go bot.handleMessage(ctx, update.Message)
			}
		}

		bot.logger.Warn("Lost connection to telegram, reconnecting", logging.Duration("delay", retryDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		if retryDelay < 300*time.Second {
			retryDelay *= 2
		}
	}
}

func (bot *Bot) isAllowed(userID int64) bool {
	if bot.conf.Telegram.Public {
		return true
	}

	for _, allowedID := range bot.conf.Telegram.AllowedUserIDs {
		if userID == allowedID {
			return true
		}
	}

	return false
}

func (bot *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	bot.logger.Debug("Message received",
		logging.String("username", message.From.UserName),
		logging.Int64("chat_id", message.Chat.ID),
		logging.String("text", message.Text),
	)

	if !bot.isAllowed(message.From.ID) {
		bot.api.Send(tgbotapi.NewMessage(message.Chat.ID, "You are not allowed to use this bot!"))
		bot.logger.Debug("User rejected", logging.Int64("user_id", message.From.ID))
		return
	}

	if message.Document != nil {
		bot.handleDocument(ctx, message)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	name, args := parseCommand(text)
	command := bot.CommandByName(name)
	if command == nil && strings.HasPrefix(text, "http") {
		// a bare link
		command = bot.CommandByName("url")
		args = text
	}
	if command == nil {
		bot.sendCommandSuggestions(message.Chat.ID, name)
		return
	}

	reply, err := command.Call(ctx, Request{
		ChatID: message.Chat.ID,
		UserID: message.From.ID,
		Args:   args,
	})
	if err != nil {
		bot.logger.Warn("Command failed",
			logging.String("command", command.Name),
			logging.Error(err),
		)
		bot.sendError(message.Chat.ID, userMessage(err), message.MessageID)
		return
	}

	bot.sendReply(message.Chat.ID, reply, message.MessageID)
}

// parseCommand splits "/verify@NTVbot args" into "verify" and "args".
func parseCommand(text string) (string, string) {
	name, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	name = strings.TrimPrefix(name, "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	return strings.ToLower(name), strings.TrimSpace(args)
}

func (bot *Bot) sendReply(chatID int64, reply Reply, replyTo int) {
	if reply.Document != nil {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
			Name:  reply.Document.Name,
			Bytes: reply.Document.Data,
		})
		doc.Caption = reply.Document.Caption
		doc.ReplyToMessageID = replyTo
		if _, err := bot.api.Send(doc); err != nil {
			bot.logger.Error("Failed to send document", logging.Error(err))
			bot.sendError(chatID, "Could not send the file, please retry", replyTo)
			return
		}
	}

	if reply.Text != "" {
		bot.sendMarkdown(chatID, reply.Text, replyTo)
	}
}

func (bot *Bot) sendCommandSuggestions(chatID int64, input string) {
	suggestions := bot.findSimilarCommands(input)
	if len(suggestions) == 0 {
		return
	}

	message := "Unknown command. Perhaps you meant one of these:\n"
	for _, cmd := range suggestions {
		command := bot.CommandByName(cmd)
		if command != nil {
			message += fmt.Sprintf("`%s` - %s\n", command.Name, command.Description)
		}
	}
	message += "\nUse `help [command]` for reference"

	bot.sendMarkdown(chatID, message, 0)
}
