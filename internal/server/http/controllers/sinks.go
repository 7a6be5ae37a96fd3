package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rzbill/pulse/internal/stream"
)

// sseSink writes frames as text/event-stream and flushes each one.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) Send(f stream.Frame) error {
	if _, err := s.w.Write(f.SSE()); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) Transport() string { return "sse" }

// wsSink writes frames as JSON text messages. Run is the only writer.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) Send(f stream.Frame) error {
	b, err := f.JSON()
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *wsSink) Transport() string { return "ws" }
