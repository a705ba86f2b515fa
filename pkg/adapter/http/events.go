package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

// handleEvents upgrades to a websocket and streams repository events as JSON.
//
// Query parameters:
//   - repository: only events of this repository (access rules apply)
//   - type: repeated, only these event types
//
// Without a repository filter the client receives events of every
// repository it is allowed to read.
func (a *HTTPAdapter) handleEvents(c *gin.Context) {
	if a.bus == nil {
		c.JSON(http.StatusNotImplemented, errorBody{Error: errorDetail{
			Code: "not_supported", Kind: "not_supported", Message: "event feed disabled",
		}})
		return
	}

	repo := c.Query("repository")
	client := c.ClientIP()
	if repo != "" {
		if err := a.registry.CheckAccess(repo, client, false); err != nil {
			writeError(c, err)
			return
		}
	}

	var types []events.Type
	for _, t := range c.QueryArray("type") {
		types = append(types, events.Type(t))
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade error: %v", err)
		return
	}

	sub := a.bus.Subscribe(a.config.EventBuffer, types...)
	a.feeds.Store(conn, struct{}{})
	a.metrics.SetEventSubscribers(int(a.feedCount.Add(1)))
	logger.Debug("Event feed client connected from %s (repository=%q)", client, repo)

	defer func() {
		sub.Close()
		a.feeds.Delete(conn)
		_ = conn.Close()
		a.metrics.SetEventSubscribers(int(a.feedCount.Add(-1)))
		logger.Debug("Event feed client %s disconnected", client)
	}()

	// The read loop only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-a.shutdown:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if !a.deliverable(ev, repo, client) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("Error sending event to %s: %v", client, err)
				return
			}
		}
	}
}

func (a *HTTPAdapter) deliverable(ev events.Event, repo, client string) bool {
	if repo != "" {
		return ev.Repository == repo
	}
	return a.registry.CheckAccess(ev.Repository, client, false) == nil
}
