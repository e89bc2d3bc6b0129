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
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsTypeAnalyze      = "analyze"
	wsTypeVerify       = "verify"
	wsTypeArticle      = "article"
	wsTypeVerification = "verification"
	wsTypeError        = "error"
	wsTypeDone         = "done"

	wsWriteTimeout = 10 * time.Second
)

type wsRequest struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Headline string `json:"headline,omitempty"`
	Content  string `json:"content,omitempty"`
}

type wsMessage struct {
	Type         string                `json:"type"`
	ID           string                `json:"id,omitempty"`
	Index        int                   `json:"index"`
	Article      *article.Analyzed     `json:"article,omitempty"`
	Verification *article.Verification `json:"verification,omitempty"`
	Total        int                   `json:"total,omitempty"`
	Failed       int                   `json:"failed,omitempty"`
	Error        string                `json:"error,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
	ctx  context.Context
}

// push queues msg unless the connection is gone.
func (c *wsClient) push(msg wsMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", logging.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		conn: conn,
		send: make(chan wsMessage, 64),
		ctx:  ctx,
	}

	s.logger.Debug("Web client connected", logging.String("request_id", requestIDFrom(r.Context())))

	go client.writePump(cancel)
	go s.readPump(client, cancel)
}

func (c *wsClient) writePump(cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(c *wsClient, cancel context.CancelFunc) {
	var wg sync.WaitGroup
	defer func() {
		// stop running analyses before the connection goes away
		cancel()
		wg.Wait()
		s.logger.Debug("Web client disconnected")
	}()

	for {
		_, msgBytes, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.push(wsMessage{Type: wsTypeError, Error: "invalid JSON"})
			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveWSRequest(c, req)
		}()
	}
}

func (s *Server) serveWSRequest(c *wsClient, req wsRequest) {
	switch req.Type {
	case wsTypeAnalyze:
		s.streamAnalysis(c, req)
	case wsTypeVerify:
		result, err := s.analyzer.Verify(c.ctx, req.Headline, req.Content)
		if err != nil {
			s.logger.Warn("Websocket verify failed", logging.String("id", req.ID), logging.Error(err))
			c.push(wsMessage{Type: wsTypeError, ID: req.ID, Error: "analysis failed, please retry"})
			return
		}
		c.push(wsMessage{Type: wsTypeVerification, ID: req.ID, Verification: &result})
	default:
		c.push(wsMessage{Type: wsTypeError, ID: req.ID, Error: "unknown message type " + req.Type})
	}
}

// streamAnalysis sends one message per headline in input order, then a
// done message.
func (s *Server) streamAnalysis(c *wsClient, req wsRequest) {
	limit := req.Limit
	if limit < 1 || limit > maxLimit {
		limit = s.conf.DefaultLimit
	}

	articles, err := s.analyzer.FetchHeadlines(c.ctx, limit)
	if err != nil {
		s.logger.Warn("Websocket headline fetch failed", logging.String("id", req.ID), logging.Error(err))
		c.push(wsMessage{Type: wsTypeError, ID: req.ID, Error: "failed to fetch headlines"})
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	failed := 0
	for result := range s.analyzer.Stream(ctx, articles) {
		msg := wsMessage{Type: wsTypeArticle, ID: req.ID, Index: result.Index}
		if result.Err != nil {
			failed++
			s.logger.Warn("Websocket item failed",
				logging.String("id", req.ID),
				logging.Int("index", result.Index),
				logging.Error(result.Err),
			)
			msg.Type = wsTypeError
			msg.Error = "analysis failed"
		} else {
			analyzed := result.Article
			msg.Article = &analyzed
		}

		if !c.push(msg) {
			// the deferred cancel stops the stream
			return
		}
	}

	c.push(wsMessage{Type: wsTypeDone, ID: req.ID, Total: len(articles), Failed: failed})
}
