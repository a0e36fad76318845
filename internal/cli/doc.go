// Package cli is the interactive front end of the register. One running
// process plays the part of one browser tab: it holds a session.State,
// listens on the cross-tab channel so edits made in other processes show
// up, and offers teacher and student commands through a small REPL.
//
// The REPL is started via App.Run, which blocks until the user exits.
package cli
