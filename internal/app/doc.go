// Package app assembles a running facewatch process: record store, engine
// supervisor, camera arbiter, hotplug watcher and identification coordinator.
//
// Start brings the pieces up in dependency order and Close tears them down in
// reverse. The serve command and the CLI one-shots share this wiring so a
// one-shot identify behaves exactly like a request to the daemon.
package app
