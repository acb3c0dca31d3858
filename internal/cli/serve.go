package cli

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/echolog/echologd/internal/daemon"
	"github.com/echolog/echologd/internal/server"
)

// Represents the 'echologd serve' command.
type ServeCmd struct {
	DaemonMode bool   `name:"daemon" short:"d" help:"Run detached from the controlling terminal."`
	Port       int    `short:"p" default:"9000" help:"TCP port to listen on."`
	File       string `help:"Override the default record log path." placeholder:"PATH"`
	MaxPending int    `default:"4096" help:"Pending bytes allowed before an unterminated record is flushed without an echo. 0 grows the buffer instead."`
}

// Executes the serve command.
//
// In daemon mode the parent binds the port, spawns the detached child with
// the socket, and returns immediately. Otherwise the server runs in the
// foreground (or as the detached child) until the signal context is
// cancelled.
func (c *ServeCmd) Run(ctx context.Context) error {
	if c.DaemonMode && !daemon.Detached() {
		listener, err := server.Listen(c.Port)
		if err != nil {
			return err
		}
		return daemon.Spawn(listener)
	}

	cfg := server.Config{
		Port:       c.Port,
		DataFile:   c.File,
		MaxPending: c.MaxPending,
	}

	if daemon.Detached() {
		listener, err := daemon.Listener()
		if err != nil {
			return err
		}
		cfg.Listener = listener
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("echologd is running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		return srv.Stop()
	})

	return g.Wait()
}
