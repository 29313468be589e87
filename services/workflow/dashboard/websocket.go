// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var wsClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ccw_ws_clients",
	Help: "Currently connected dashboard WebSocket clients",
})

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebSocket handles GET /ws.
//
// Description:
//
//	Upgrades the connection, subscribes it to the bus, and pushes every
//	event as one JSON text frame. A reader goroutine drains whatever the
//	client sends; its only job is to surface disconnects and service
//	control frames. The loop ends on write error, client disconnect, or
//	server shutdown, and the subscription is cancelled either way.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		slog.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	wsClients.Inc()
	defer wsClients.Dec()

	sub := s.bus.Subscribe()
	defer sub.Cancel()
	slog.Info("dashboard client connected", slog.String("subscription_id", sub.ID))

	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if writeErr := conn.WriteJSON(event); writeErr != nil {
				slog.Info("dashboard client write failed",
					slog.String("subscription_id", sub.ID),
					slog.String("error", writeErr.Error()))
				return
			}
		case <-readClosed:
			slog.Info("dashboard client disconnected",
				slog.String("subscription_id", sub.ID),
				slog.Uint64("events_dropped", sub.Dropped()))
			return
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				deadline)
			return
		}
	}
}
