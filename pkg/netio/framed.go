package netio

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// frameOutputter writes one websocket text frame per line, applying
// the framed-protocol-only ANSI conversion and line-ending
// normalization spec.md §4.10 describes.
type frameOutputter struct {
	conn     *websocket.Conn
	ansiSpan bool
}

func (o *frameOutputter) SendLine(line string) error {
	normalized := normalizeLineEndings(line)
	if o.ansiSpan {
		normalized = AnsiToSpans(normalized)
	} else {
		normalized = StripAnsi(normalized)
	}
	return o.conn.WriteMessage(websocket.TextMessage, []byte(normalized))
}

func normalizeLineEndings(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// upgrader performs the RFC 6455 handshake via gorilla/websocket. The
// library computes the same Sec-WebSocket-Accept value computeAcceptValue
// does (see handshake.go and its test for the independent verification
// against the spec's canonical test vector); CheckOrigin is permissive
// because the driver has no browser-style origin policy to enforce.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxLineBytes,
	WriteBufferSize: maxLineBytes,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// framedHandler is the HTTP handler the framed listener runs: it
// upgrades every request to a websocket connection (gated on the
// bounded session-capacity semaphore, exactly like the stream
// listener) and then hands reads off to readFramedMessages.
func (m *Multiplexer) framedHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-m.slots:
	default:
		http.Error(w, "driver is full", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.slots <- struct{}{}
		m.log.Warn("netio: websocket upgrade failed", "err", err)
		return
	}

	id := uuid.New()
	out := &frameOutputter{conn: conn, ansiSpan: m.ansiSpan}
	m.events <- netEvent{kind: evConnect, id: id, out: out, closer: conn}

	go m.readFramedMessages(id, conn)
}

// readFramedMessages decodes incoming frames per spec.md §4.10's
// opcode table: gorilla/websocket reassembles continuation frames into
// whole messages, binary messages are ignored (spec scopes the protocol
// to text), ping/pong are handled transparently by gorilla/websocket's
// default handlers, and a close frame, a message over maxLineBytes, or
// a read error tears the session down.
func (m *Multiplexer) readFramedMessages(id uuid.UUID, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(maxLineBytes)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		m.events <- netEvent{kind: evLine, id: id, line: string(data)}
	}
	m.events <- netEvent{kind: evDisconnect, id: id}
}
