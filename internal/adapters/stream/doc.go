// Package stream implements the broadcast hub and the server-sent events
// endpoint that feeds it.
//
// The Hub keeps the registry of open subscribers behind a mutex and fans every
// event out to a snapshot of that registry, writing outside the lock. A write
// that fails removes the subscriber; callers of Broadcast never see the error.
// Each streaming request runs one goroutine that waits on peer close, hub
// removal and a keep-alive tick, and deregisters on every exit path.
package stream
