package netio

import (
	"crypto/sha1"
	"encoding/base64"
)

// websocketGUID is the fixed RFC 6455 §1.3 magic value XORed (well,
// concatenated-then-hashed) into every client handshake key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// computeAcceptValue implements the RFC 6455 handshake accept-value
// algorithm directly against the standard library, independent of
// gorilla/websocket's own (identical) internal computation, so the
// driver's Sec-WebSocket-Accept header can be asserted against the
// spec's canonical test vector without depending on the library's
// internals (spec.md §8: the fixed client key
// "dGhlIHNhbXBsZSBub25jZQ==" must accept as
// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=").
func computeAcceptValue(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
