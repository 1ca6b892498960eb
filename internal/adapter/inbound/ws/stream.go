package ws

import (
	"io"
	"net"

	"github.com/veilgate/veilgate/internal/domain/proxy"
)

// frameReader adapts a WebSocket connection into the newline-delimited
// byte stream ClientLeg.Run scans. Ping frames are answered with pong
// transparently; binary frames are rejected with a JSON-RPC parse error
// per spec §6 rather than forwarded; close frames end the stream.
type frameReader struct {
	conn   net.Conn
	errOut *proxy.FramedWriter
	buf    []byte
}

func newFrameReader(conn net.Conn, errOut *proxy.FramedWriter) *frameReader {
	return &frameReader{conn: conn, errOut: errOut}
}

func (r *frameReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		opcode, payload, err := readFrame(r.conn)
		if err != nil {
			return 0, err
		}

		switch opcode {
		case opPing:
			if err := writeFrame(r.conn, opPong, payload); err != nil {
				return 0, err
			}
		case opPong:
			// No action required; a received pong just confirms liveness.
		case opClose:
			return 0, io.EOF
		case opBinary:
			if err := r.errOut.WriteMessage(binaryFrameRejected); err != nil {
				return 0, err
			}
		case opText, opContinuation:
			r.buf = append(payload, '\n')
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// binaryFrameRejected is the fixed JSON-RPC error response for a binary
// frame, which spec §6 rejects regardless of its content.
var binaryFrameRejected = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Invalid JSON format"}}`)

// frameWriter adapts the newline-delimited proxy.FramedWriter contract onto
// discrete WebSocket text frames. FramedWriter.WriteMessage always issues
// exactly two Write calls while holding its own lock — the raw message,
// then a single "\n" — so frameWriter buffers the first and flushes it as
// one text frame on the second.
type frameWriter struct {
	conn    net.Conn
	pending []byte
}

func newFrameWriter(conn net.Conn) *frameWriter {
	return &frameWriter{conn: conn}
}

func (w *frameWriter) Write(p []byte) (int, error) {
	if w.pending != nil && len(p) == 1 && p[0] == '\n' {
		payload := w.pending
		w.pending = nil
		if err := writeFrame(w.conn, opText, payload); err != nil {
			return 0, err
		}
		return 1, nil
	}
	w.pending = append([]byte(nil), p...)
	return len(p), nil
}
