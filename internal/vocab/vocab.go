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

package vocab

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	CLS = "[CLS]"
	SEP = "[SEP]"
	UNK = "[UNK]"
	PAD = "[PAD]"
)

var ErrVocabLoad = errors.New("failed to load vocabulary")

// Table maps word tokens to model ids and back. Immutable once built.
type Table struct {
	ids    map[string]int64
	tokens map[int64]string
	size   int
}

// Parse builds a table from newline-delimited tokens. The id of a token is
// the index of its line, blank lines included, so ids match the rows the
// model was trained with.
func Parse(r io.Reader) (*Table, error) {
	table := &Table{
		ids:    make(map[string]int64),
		tokens: make(map[int64]string),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var index int64
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token != "" {
			table.ids[token] = index
			table.tokens[index] = token
			table.size++
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}

	if table.size == 0 {
		return nil, fmt.Errorf("%w: source is empty", ErrVocabLoad)
	}

	for _, special := range []string{CLS, SEP, UNK} {
		if _, ok := table.ids[special]; !ok {
			return nil, fmt.Errorf("%w: special token %s is missing", ErrVocabLoad, special)
		}
	}
	if table.tokens[0] == "" {
		return nil, fmt.Errorf("%w: padding token with id 0 is missing", ErrVocabLoad)
	}

	return table, nil
}

// Load reads the vocabulary from a file path or an http(s) URL.
func Load(ctx context.Context, source string) (*Table, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return loadURL(ctx, source)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}
	defer file.Close()

	return Parse(file)
}

func loadURL(ctx context.Context, url string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrVocabLoad, url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabLoad, err)
	}

	return Parse(bytes.NewReader(body))
}

// ID returns the id of token and whether it is known.
func (t *Table) ID(token string) (int64, bool) {
	id, ok := t.ids[token]
	return id, ok
}

// Token returns the token with the given id.
func (t *Table) Token(id int64) (string, bool) {
	token, ok := t.tokens[id]
	return token, ok
}

func (t *Table) Size() int {
	return t.size
}

func (t *Table) CLS() int64 { return t.ids[CLS] }
func (t *Table) SEP() int64 { return t.ids[SEP] }
func (t *Table) UNK() int64 { return t.ids[UNK] }
