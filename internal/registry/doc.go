// Package registry maps notifier kinds named in configuration ("socketio",
// "upload", ...) to the compiled modules that build coredump subscribers.
//
// Modules register themselves at startup. The registry is then checked
// against the configured notifiers so that a typo in a kind fails the start
// instead of silently dropping notifications.
package registry
