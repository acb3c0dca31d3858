// Package server implements the echologd daemon.
//
// The daemon listens on a TCP port and appends newline-terminated records
// from clients to a single shared log file. After each complete record is
// durably appended, the full accumulated file content is written back to
// the client as a raw byte stream. Connections are serviced one at a time;
// a later connection observes every record stored during earlier ones.
//
// Shutdown is cooperative: [Server.Stop] closes the listening socket and
// the active connection, which unblocks any accept or read in progress,
// then removes the record log and PID file.
//
// Example usage:
//
//	srv, err := server.New(server.Config{Port: 9000})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	return srv.Serve()
package server
