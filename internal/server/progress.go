package server

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleProgressFeed handles GET /api/optimize/progress: a websocket that
// streams optimization events (iteration progress, run completion,
// calibration updates) to the client as JSON.
func (s *Server) handleProgressFeed(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "Progress feed is disabled", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	eventCh, unsubscribe := s.bus.Subscribe(64)
	defer unsubscribe()

	ctx := r.Context()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Progress feed connected")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				s.log.Debug().Err(err).Msg("Progress feed write failed, closing")
				return
			}
		}
	}
}
