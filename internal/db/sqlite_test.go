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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "ntvbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetChatConfigDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	config, err := db.GetChatConfig(ctx, 42, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), config.ChatID)
	assert.Equal(t, 7, config.HeadlineLimit)

	// defaults are persisted on first access
	config, err = db.GetChatConfig(ctx, 42, 15)
	require.NoError(t, err)
	assert.Equal(t, 7, config.HeadlineLimit)

	config, err = db.GetChatConfig(ctx, 43, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHeadlineLimit, config.HeadlineLimit)
}

func TestSaveChatConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveChatConfig(ctx, &ChatConfig{ChatID: 1, HeadlineLimit: 25}))
	require.NoError(t, db.SaveChatConfig(ctx, &ChatConfig{ChatID: 1, HeadlineLimit: 3}))

	config, err := db.GetChatConfig(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, config.HeadlineLimit)

	require.NoError(t, db.DeleteChatConfig(ctx, 1))
	config, err = db.GetChatConfig(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, config.HeadlineLimit)
}

func TestReopenKeepsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ntvbot.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveChatConfig(ctx, &ChatConfig{ChatID: 9, HeadlineLimit: 12}))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	config, err := db.GetChatConfig(ctx, 9, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, config.HeadlineLimit)
}
