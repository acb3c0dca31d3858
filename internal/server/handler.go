package server

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/echolog/echologd/internal/framer"
)

// Size of the per-connection read buffer.
const readBufferSize = 4096

// Services a single client connection until the peer closes, an I/O error
// occurs, or shutdown forces the socket closed.
//
// Received bytes run through a framer; every completed record is appended
// to the store, and newline-terminated records are answered with the full
// accumulated log content. Forced flushes (pending buffer full) are stored
// without an echo. Leftover unterminated bytes at end of stream are stored
// and echoed.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	slog.Info("accepted connection", "peer", peer)
	defer slog.Info("closed connection", "peer", peer)

	s.setConn(conn)
	defer s.setConn(nil)

	// Stop closes done before it inspects the active connection, so if
	// done is still open here Stop has yet to run and will force this
	// connection closed. If it is already closed, Stop may have missed
	// the registration and nothing would ever unblock the read.
	if s.stopping() {
		return
	}

	fr := framer.New(s.maxPending)
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, rec := range fr.Feed(buf[:n]) {
				if aerr := s.store.Append(rec.Data); aerr != nil {
					if !s.stopping() {
						slog.Error("append failed", "peer", peer, "error", aerr)
					}
					return
				}
				if !rec.Terminated {
					slog.Debug("pending buffer full, record flushed without echo",
						"peer", peer, "bytes", len(rec.Data))
					continue
				}
				if eerr := s.echo(conn); eerr != nil {
					if !s.stopping() {
						slog.Error("echo failed", "peer", peer, "error", eerr)
					}
					return
				}
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.finish(conn, fr, peer)
			return
		default:
			if !s.stopping() {
				slog.Error("read failed", "peer", peer, "error", err)
			}
			return
		}
	}
}

// Persists and echoes any bytes still buffered when the peer closes its
// sending side.
func (s *Server) finish(conn net.Conn, fr *framer.Framer, peer string) {
	rec, ok := fr.Flush()
	if !ok {
		return
	}
	if err := s.store.Append(rec.Data); err != nil {
		if !s.stopping() {
			slog.Error("append failed", "peer", peer, "error", err)
		}
		return
	}
	if err := s.echo(conn); err != nil && !s.stopping() {
		slog.Error("echo failed", "peer", peer, "error", err)
	}
}

// Sends the full accumulated log content back to the client.
//
// net.Conn retries partial writes internally, so a successful return means
// every byte was handed to the socket.
func (s *Server) echo(conn net.Conn) error {
	_, err := s.store.WriteTo(conn)
	return err
}
