package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/echolog/echologd/internal/paths"
	"github.com/echolog/echologd/internal/store"
)

// Default TCP port the daemon listens on.
const DefaultPort = 9000

// Holds server configuration.
type Config struct {
	Port       int          // TCP port to listen on. Zero uses [DefaultPort].
	DataFile   string       // Override for the record log path. Empty uses the default.
	MaxPending int          // Pending-byte bound before a forced flush. Zero disables the bound.
	Listener   net.Listener // Pre-bound listener. Nil binds Port at Start.
}

// Listens for TCP connections and appends newline-terminated records to the
// record log, echoing the full accumulated content after each record.
type Server struct {
	port       int
	maxPending int
	store      *store.Store
	listener   net.Listener
	done       chan struct{} // Closed exactly once when shutdown begins.
	stopOnce   sync.Once
	stopErr    error
	mu         sync.Mutex // Guards conn.
	conn       net.Conn   // Active client connection, if any.
}

// Creates a new server instance and resets the record log.
//
// The listening socket is not bound until [Server.Start] is called, unless a
// pre-bound listener was supplied in the configuration.
func New(cfg Config) (*Server, error) {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	dataFile := cfg.DataFile
	if dataFile == "" {
		dataFile = paths.DataFile()
	}

	st, err := store.Open(dataFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	return &Server{
		port:       port,
		maxPending: cfg.MaxPending,
		store:      st,
		listener:   cfg.Listener,
		done:       make(chan struct{}),
	}, nil
}

// Binds an IPv4 TCP listener on the given port.
//
// Exposed separately from [Server.Start] so daemon mode can bind in the
// parent process and hand the socket to the detached child.
func Listen(port int) (net.Listener, error) {
	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("%w: listen on port %d: %w", ErrSetup, port, err)
	}
	return listener, nil
}

// Binds the listening socket if none was supplied and writes the PID file.
func (s *Server) Start() error {
	if s.listener == nil {
		listener, err := Listen(s.port)
		if err != nil {
			return err
		}
		s.listener = listener
	}

	if err := writePID(); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("listening", "addr", s.listener.Addr(), "file", s.store.Path())
	return nil
}

// Address the server is listening on. Valid after [Server.Start].
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Accepts and services connections until shutdown.
//
// Connections are handled one at a time; a later connection observes every
// record stored during earlier ones. Accept errors during shutdown end the
// loop cleanly; any other accept error is logged and the loop continues.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed outside shutdown: %w", err)
			}
			slog.Error("accept failed", "error", err)
			continue
		}

		s.handle(conn)
	}
}

// Shuts down the server and cleans up persisted state. Idempotent.
//
// Closing the listener and the active connection forces any blocked accept
// or read to return, letting [Server.Serve] and the connection handler
// observe the shutdown and exit.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()

		s.stopErr = s.store.Remove()
		os.Remove(paths.PIDFile())
	})
	return s.stopErr
}

// Records the connection currently being serviced so [Server.Stop] can
// force it closed.
func (s *Server) setConn(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Reports whether shutdown has begun.
func (s *Server) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Writes the daemon PID to the PID file.
func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFile(), fmt.Appendf(nil, "%d", os.Getpid()), paths.DefaultFileMode)
}
