/*
Package event provides a type-safe pub/sub event system for the gateway.

The event system enables decoupled communication between the dispatcher,
the session registry, and the tool handlers: publishers emit events and
subscribers react to them without direct dependencies. The gateway uses it
to forward session-scoped events (ticket created, contact updated, session
expired) into the owning session's stream for server-push delivery.

The package is built on top of watermill's gochannel for infrastructure
while keeping direct-call semantics to preserve type information. Publish
delivers asynchronously (one goroutine per subscriber); PublishSync calls
subscribers inline and is used by tests and by code that needs the event
appended to the stream before responding.

Bus instances are constructed with NewBus and injected where needed; there
is deliberately no package-level bus, so tests can run isolated instances.
*/
package event
