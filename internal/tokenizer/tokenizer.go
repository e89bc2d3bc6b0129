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

// Package tokenizer turns raw text into fixed-length BERT model input.
package tokenizer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"Unbewohnte/NTVbot/internal/vocab"
)

const DefaultMaxSeqLength = 128

var ErrNotInitialized = errors.New("tokenizer is not initialized")

// Encoded is one model input. Both slices are MaxSeqLength long.
type Encoded struct {
	InputIDs      []int64
	AttentionMask []int64
}

type Tokenizer struct {
	source       string
	maxSeqLength int

	mu    sync.RWMutex
	table *vocab.Table
}

func New(vocabSource string, maxSeqLength int) *Tokenizer {
	if maxSeqLength < 2 {
		maxSeqLength = DefaultMaxSeqLength
	}

	return &Tokenizer{
		source:       vocabSource,
		maxSeqLength: maxSeqLength,
	}
}

// NewFromTable returns an already initialized tokenizer.
func NewFromTable(table *vocab.Table, maxSeqLength int) *Tokenizer {
	tok := New("", maxSeqLength)
	tok.table = table
	return tok
}

// Initialize loads the vocabulary once. Calls after a successful load are
// no-ops; concurrent callers wait for the one load in progress.
func (t *Tokenizer) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table != nil {
		return nil
	}

	table, err := vocab.Load(ctx, t.source)
	if err != nil {
		return err
	}
	t.table = table

	return nil
}

func (t *Tokenizer) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table != nil
}

func (t *Tokenizer) MaxSeqLength() int {
	return t.maxSeqLength
}

// Encode splits text on whitespace, maps each word to its id ([UNK] when
// absent), wraps the ids into [CLS] ... [SEP] and pads with zeroes.
func (t *Tokenizer) Encode(text string) (Encoded, error) {
	t.mu.RLock()
	table := t.table
	t.mu.RUnlock()

	if table == nil {
		return Encoded{}, ErrNotInitialized
	}

	words := strings.Fields(text)
	if len(words) > t.maxSeqLength-2 {
		words = words[:t.maxSeqLength-2]
	}

	encoded := Encoded{
		InputIDs:      make([]int64, t.maxSeqLength),
		AttentionMask: make([]int64, t.maxSeqLength),
	}

	encoded.InputIDs[0] = table.CLS()
	for i, word := range words {
		id, ok := table.ID(word)
		if !ok {
			id = table.UNK()
		}
		encoded.InputIDs[i+1] = id
	}
	encoded.InputIDs[len(words)+1] = table.SEP()

	for i := 0; i < len(words)+2; i++ {
		encoded.AttentionMask[i] = 1
	}

	return encoded, nil
}
