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

package db

const DefaultHeadlineLimit = 10

// ChatConfig holds per-chat bot preferences.
type ChatConfig struct {
	ChatID        int64 `db:"chat_id"`
	HeadlineLimit int   `db:"headline_limit"`
}

func DefaultChatConfig(chatID int64, headlineLimit int) *ChatConfig {
	if headlineLimit <= 0 {
		headlineLimit = DefaultHeadlineLimit
	}

	return &ChatConfig{
		ChatID:        chatID,
		HeadlineLimit: headlineLimit,
	}
}
