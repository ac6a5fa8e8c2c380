package netio

import (
	"bufio"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/Thurtea/amlp-driver/pkg/session"
)

// maxLineBytes bounds one logical input line (spec.md §4.10) and one
// framed message: a stream session that sends a longer line stops being
// read and is disconnected; its buffer is not reset and no error
// message is sent.
const maxLineBytes = 64 * 1024

// streamOutputter writes CRLF-terminated lines to a raw stream
// connection — the wire format spec.md §6 documents for the stream
// protocol.
type streamOutputter struct {
	w *bufio.Writer
}

func (o *streamOutputter) SendLine(line string) error {
	if _, err := o.w.WriteString(line); err != nil {
		return err
	}
	if _, err := o.w.WriteString("\r\n"); err != nil {
		return err
	}
	return o.w.Flush()
}

// acceptStream runs the stream-protocol listener: one goroutine per
// accepted connection reads LF-delimited lines (a preceding CR is
// stripped, per spec.md §4.10) and forwards them as events to the
// owner loop. The listener itself is closed as soon as ctx is done,
// which is what unblocks the blocking Accept call below.
func (m *Multiplexer) acceptStream(ln net.Listener) {
	go func() {
		<-m.ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.log.Warn("netio: stream accept error", "err", err)
			continue
		}
		m.handleStreamConn(conn)
	}
}

func (m *Multiplexer) handleStreamConn(conn net.Conn) {
	select {
	case <-m.slots:
	default:
		full := &streamOutputter{w: bufio.NewWriter(conn)}
		full.SendLine("The driver is full. Try again later.")
		conn.Close()
		return
	}

	id := uuid.New()
	out := &streamOutputter{w: bufio.NewWriter(conn)}
	m.events <- netEvent{kind: evConnect, id: id, out: out, closer: conn}

	go m.readStreamLines(id, conn)
}

func (m *Multiplexer) readStreamLines(id uuid.UUID, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		m.events <- netEvent{kind: evLine, id: id, line: line}
	}
	m.events <- netEvent{kind: evDisconnect, id: id}
}
