// Package daemon detaches the server from the controlling terminal.
//
// Go programs cannot fork and continue, so detaching re-executes the
// current binary: the parent binds the listening socket, spawns the child
// as a session leader with the socket passed as an inherited descriptor,
// and exits. Binding in the parent means port conflicts and permission
// errors are still reported to the invoking shell with a failing status.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

var ErrDaemon = errors.New("daemonize failed")

// Environment marker identifying the detached child.
const detachedEnv = "ECHOLOGD_DETACHED"

// File descriptor the inherited listener arrives on in the child. Stdin,
// stdout, and stderr occupy 0-2; the first ExtraFiles entry is 3.
const listenerFD = 3

// Reports whether this process is the detached child.
func Detached() bool {
	return os.Getenv(detachedEnv) == "1"
}

// Re-executes the current binary as a detached session leader, handing it
// the bound listener.
//
// The child runs with working directory /, standard streams on /dev/null,
// and its own session, free of the controlling terminal. Returns once the
// child has started; the caller should exit.
func Spawn(listener net.Listener) error {
	tcp, ok := listener.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("%w: listener is not TCP", ErrDaemon)
	}

	file, err := tcp.File()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDaemon, err)
	}
	defer file.Close()
	defer listener.Close()

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDaemon, err)
	}
	defer devnull.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Dir = "/"
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.ExtraFiles = []*os.File{file}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrDaemon, err)
	}
	return nil
}

// Reconstructs the listener inherited from the parent process.
func Listener() (net.Listener, error) {
	file := os.NewFile(listenerFD, "listener")
	if file == nil {
		return nil, fmt.Errorf("%w: no inherited listener", ErrDaemon)
	}
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}
	return listener, nil
}
