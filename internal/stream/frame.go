package stream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rzbill/pulse/internal/realtime"
)

// Control frame names.
const (
	FrameReady = "ready"
	FramePing  = "ping"
)

// Frame is one named message to a client.
type Frame struct {
	Event string
	Data  []byte
}

// ReadyFrame is sent once right after admission.
func ReadyFrame() Frame {
	return Frame{Event: FrameReady, Data: []byte(`{"ok":true}`)}
}

// PingFrame carries the current time in unix milliseconds.
func PingFrame(now time.Time) Frame {
	return Frame{Event: FramePing, Data: strconv.AppendInt(nil, now.UnixMilli(), 10)}
}

// EventFrame is named after the event's topic and carries the event JSON.
func EventFrame(e realtime.Event) (Frame, error) {
	data, err := e.Encode()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: e.Topic.String(), Data: data}, nil
}

// SSE renders f as "event: <name>\ndata:<data>\n\n".
func (f Frame) SSE() []byte {
	var b bytes.Buffer
	b.Grow(len(f.Event) + len(f.Data) + 16)
	b.WriteString("event: ")
	b.WriteString(f.Event)
	b.WriteString("\ndata:")
	b.Write(f.Data)
	b.WriteString("\n\n")
	return b.Bytes()
}

type jsonFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JSON renders f as {"event":<name>,"data":<data>}.
func (f Frame) JSON() ([]byte, error) {
	return json.Marshal(jsonFrame{Event: f.Event, Data: json.RawMessage(f.Data)})
}

// Sink delivers frames to one client. Implementations flush every frame.
type Sink interface {
	Send(f Frame) error
	// Transport names the sink for metrics, e.g. "sse" or "ws".
	Transport() string
}
