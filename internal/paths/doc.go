// Provides filesystem paths for the daemon.
//
// Runtime files (the PID file) follow XDG conventions on Linux and
// platform-native conventions elsewhere. The record log itself defaults to a
// fixed path under /var/tmp, overridable on the command line.
package paths
