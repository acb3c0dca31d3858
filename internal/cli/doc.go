// Parses flags and configures logging for the echologd daemon.
//
// The daemon accepts the following root flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	    --debug     Enable debug output.
//
// The serve command (the default) adds:
//
//	-d, --daemon       Run detached from the controlling terminal.
//	-p, --port         TCP port to listen on.
//	    --file         Record log path.
//	    --max-pending  Pending-byte bound before a forced flush.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before the
// server starts.
package cli
