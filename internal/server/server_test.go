package server_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/echolog/echologd/internal/server"
)

type testServer struct {
	srv      *server.Server
	addr     string
	dataFile string
	served   chan error
}

func startServer(t *testing.T, maxPending int) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	assert.NilError(t, err)

	dataFile := filepath.Join(t.TempDir(), "echologd.data")
	srv, err := server.New(server.Config{
		Listener:   listener,
		DataFile:   dataFile,
		MaxPending: maxPending,
	})
	assert.NilError(t, err)
	assert.NilError(t, srv.Start())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	t.Cleanup(func() { srv.Stop() })

	return &testServer{
		srv:      srv,
		addr:     listener.Addr().String(),
		dataFile: dataFile,
		served:   served,
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	assert.NilError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Reads exactly len(want) bytes; the echo stream carries no framing, so the
// expected length is the only way to delimit a response.
func readEcho(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	assert.NilError(t, err)
	assert.Equal(t, want, string(buf))
}

func TestEchoAccumulatesWithinConnection(t *testing.T) {
	ts := startServer(t, 0)
	conn := dial(t, ts.addr)

	_, err := conn.Write([]byte("hello\n"))
	assert.NilError(t, err)
	readEcho(t, conn, "hello\n")

	_, err = conn.Write([]byte("world\n"))
	assert.NilError(t, err)
	readEcho(t, conn, "hello\nworld\n")
}

func TestEchoAccumulatesAcrossConnections(t *testing.T) {
	ts := startServer(t, 0)

	first := dial(t, ts.addr)
	_, err := first.Write([]byte("foo\n"))
	assert.NilError(t, err)
	readEcho(t, first, "foo\n")
	assert.NilError(t, first.Close())

	second := dial(t, ts.addr)
	_, err = second.Write([]byte("bar\n"))
	assert.NilError(t, err)
	readEcho(t, second, "foo\nbar\n")
}

func TestRecordSplitAcrossWrites(t *testing.T) {
	ts := startServer(t, 0)
	conn := dial(t, ts.addr)

	for _, chunk := range []string{"he", "llo", "\n"} {
		_, err := conn.Write([]byte(chunk))
		assert.NilError(t, err)
	}

	readEcho(t, conn, "hello\n")
}

func TestMultipleRecordsInOneWrite(t *testing.T) {
	ts := startServer(t, 0)
	conn := dial(t, ts.addr)

	_, err := conn.Write([]byte("a\nb\n"))
	assert.NilError(t, err)

	// One echo per record, back to back on the stream.
	readEcho(t, conn, "a\n"+"a\nb\n")
}

func TestOversizedRecordFlushedWithoutEcho(t *testing.T) {
	ts := startServer(t, 16)
	conn := dial(t, ts.addr)

	oversized := make([]byte, 16)
	for i := range oversized {
		oversized[i] = 'a'
	}
	_, err := conn.Write(oversized)
	assert.NilError(t, err)

	// Give the server time to force-flush before the terminated record
	// arrives, so the two cannot land in a single read.
	time.Sleep(100 * time.Millisecond)

	_, err = conn.Write([]byte("b\n"))
	assert.NilError(t, err)

	// A single echo: the flushed bytes produced none of their own but are
	// part of the accumulated content.
	readEcho(t, conn, string(oversized)+"b\n")
}

func TestLeftoverEchoedAtEndOfStream(t *testing.T) {
	ts := startServer(t, 0)

	conn := dial(t, ts.addr)
	_, err := conn.Write([]byte("partial"))
	assert.NilError(t, err)
	tcp := conn.(*net.TCPConn)
	assert.NilError(t, tcp.CloseWrite())

	readEcho(t, conn, "partial")
}

func TestStopUnblocksAccept(t *testing.T) {
	ts := startServer(t, 0)

	// No client is connected; Serve is blocked in accept.
	assert.NilError(t, ts.srv.Stop())

	select {
	case err := <-ts.served:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after stop")
	}

	_, err := os.Stat(ts.dataFile)
	assert.Assert(t, os.IsNotExist(err), "data file still present after stop")
}

func TestStopClosesActiveConnection(t *testing.T) {
	ts := startServer(t, 0)
	conn := dial(t, ts.addr)

	_, err := conn.Write([]byte("hello\n"))
	assert.NilError(t, err)
	readEcho(t, conn, "hello\n")

	// The server is now blocked reading this connection.
	assert.NilError(t, ts.srv.Stop())

	select {
	case err := <-ts.served:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after stop")
	}

	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Assert(t, err != nil, "connection still open after stop")
}

func TestStopIsIdempotent(t *testing.T) {
	ts := startServer(t, 0)

	assert.NilError(t, ts.srv.Stop())
	assert.NilError(t, ts.srv.Stop())
}

// Hands out one connection only after release is closed, then reports
// closed. Models a connection accepted concurrently with Stop, too late
// for Stop to see it as the active connection.
type handoffListener struct {
	release   <-chan struct{}
	conn      net.Conn
	mu        sync.Mutex
	delivered bool
}

func (l *handoffListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	delivered := l.delivered
	l.delivered = true
	l.mu.Unlock()

	if delivered {
		return nil, net.ErrClosed
	}
	<-l.release
	return l.conn, nil
}

func (l *handoffListener) Close() error { return nil }

func (l *handoffListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestStopDuringAcceptHandoff(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	release := make(chan struct{})
	listener := &handoffListener{release: release, conn: serverEnd}

	srv, err := server.New(server.Config{
		Listener: listener,
		DataFile: filepath.Join(t.TempDir(), "echologd.data"),
	})
	assert.NilError(t, err)
	assert.NilError(t, srv.Start())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	assert.NilError(t, srv.Stop())

	// The connection surfaces only now, so Stop never saw it as the
	// active connection. The handler must still notice the shutdown and
	// close it rather than block reading an idle client.
	close(release)

	select {
	case err := <-served:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop still blocked after stop")
	}

	assert.NilError(t, clientEnd.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = clientEnd.Read(make([]byte, 1))
	assert.Assert(t, err != nil, "connection left open after stop")
}

// Collects error-level log records; lower levels pass through unrecorded.
type errorLogRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *errorLogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (r *errorLogRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	r.messages = append(r.messages, rec.Message)
	r.mu.Unlock()
	return nil
}

func (r *errorLogRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *errorLogRecorder) WithGroup(string) slog.Handler      { return r }

func (r *errorLogRecorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestStopMidEchoLogsNoErrors(t *testing.T) {
	recorder := &errorLogRecorder{}
	previous := slog.Default()
	slog.SetDefault(slog.New(recorder))
	t.Cleanup(func() { slog.SetDefault(previous) })

	ts := startServer(t, 0)
	conn := dial(t, ts.addr)

	// A record far larger than the socket buffers. The client never
	// reads, so the echo blocks mid-write until Stop closes the
	// connection out from under it.
	record := append(bytes.Repeat([]byte("a"), 4<<20), '\n')
	_, err := conn.Write(record)
	assert.NilError(t, err)

	// Let the server finish draining the record and block in the echo.
	time.Sleep(300 * time.Millisecond)

	assert.NilError(t, ts.srv.Stop())

	select {
	case err := <-ts.served:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after stop")
	}

	errs := recorder.errors()
	assert.Assert(t, len(errs) == 0, "error logs during shutdown: %v", errs)
}
