package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/registry"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleViewSocket holds the view open for the life of the connection and pushes the
// projection after every change.
func (s *Server) handleViewSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	roadID, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/ws/views/"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Road ID must be an integer")
		return
	}

	sess, err := s.hub.Acquire(r.Context(), roadID)
	if err != nil {
		if errors.Is(err, registry.ErrRoadNotFound) {
			s.writeError(w, http.StatusNotFound, "Road not found")
		} else {
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	defer s.hub.Release(roadID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Int("road_id", roadID).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// Client messages are ignored; reading only notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Int("road_id", roadID).Str("session_id", sess.ID()).Msg("View socket connected")

	for {
		select {
		case <-gone:
			log.Info().Int("road_id", roadID).Msg("View socket disconnected")
			return
		case v, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "view closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				log.Warn().Err(err).Int("road_id", roadID).Msg("Failed to push view")
				return
			}
		}
	}
}
