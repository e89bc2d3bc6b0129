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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_configs (
			chat_id INTEGER PRIMARY KEY,
			headline_limit INTEGER NOT NULL DEFAULT 10
		);`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat_configs: %w", err)
	}

	return &DB{db}, nil
}

// GetChatConfig returns the stored preferences of chatID. Unknown chats get
// defaults built from defaultLimit, which are saved.
func (db *DB) GetChatConfig(ctx context.Context, chatID int64, defaultLimit int) (*ChatConfig, error) {
	config := &ChatConfig{}

	err := db.QueryRowContext(ctx, `
		SELECT chat_id, headline_limit
		FROM chat_configs
		WHERE chat_id = ?`, chatID).Scan(
		&config.ChatID,
		&config.HeadlineLimit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		config = DefaultChatConfig(chatID, defaultLimit)
		if err := db.SaveChatConfig(ctx, config); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (db *DB) SaveChatConfig(ctx context.Context, config *ChatConfig) error {
	_, err := db.ExecContext(ctx, `
		REPLACE INTO chat_configs (
			chat_id,
			headline_limit
		) VALUES (?, ?)`,
		config.ChatID,
		config.HeadlineLimit,
	)
	return err
}

func (db *DB) DeleteChatConfig(ctx context.Context, chatID int64) error {
	_, err := db.ExecContext(ctx, "DELETE FROM chat_configs WHERE chat_id = ?", chatID)
	return err
}
