// Package cli is the Altair operator command line.
//
// Every command works on the local SQLite mirror first; sync reconciles the
// mirror with the server. Capture, triage, the quest lifecycle and the
// energy budget therefore work offline. Register, login and attachment
// uploads need the server.
//
// The command tree is built by NewRootCommand. The shell command wraps the
// same tree in a read-eval-print loop with a background connectivity
// watcher.
package cli
