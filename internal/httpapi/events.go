package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andrevianna/clara/internal/analyzer"
)

// feedEvent is one frame of the live event feed: the machine status plus the
// current frequency snapshot, pushed on a fixed cadence.
type feedEvent struct {
	Type     string            `json:"type"`
	Status   statusResponse    `json:"status"`
	Spectrum analyzer.Snapshot `json:"spectrum"`
}

// clientCommand is what a feed client may send back.
type clientCommand struct {
	Type string `json:"type"`
}

const feedInterval = 100 * time.Millisecond

// handleEvents upgrades to a websocket and streams feed events while
// accepting activate/reset commands, so a UI can drive the whole interaction
// over one connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.readCommands(conn, done)

	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			evt := feedEvent{Type: "feed", Status: s.status()}
			if s.spectra != nil {
				evt.Spectrum = s.spectra.Last()
			} else {
				evt.Spectrum = analyzer.Snapshot{Source: analyzer.SourceNone}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

func (s *Server) readCommands(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4 << 10)
	for {
		var cmd clientCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
		case "activate":
			s.conv.Activate()
			_ = s.sessions.Touch(s.conv.SessionID())
		case "reset":
			s.conv.ForceReset()
			_ = s.sessions.RecordReset(s.conv.SessionID())
		default:
			s.log.Debug().Str("type", cmd.Type).Msg("unknown feed command")
		}
	}
}
