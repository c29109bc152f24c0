// Package conn is the event-driven connection runtime used by socksx.
//
// Every Channel is bound to one EventLoop and owns a Pipeline of handlers.
// Handler callbacks, Pipeline mutation and Context methods run on the
// channel's loop and need no locking. Socket reads and writes happen on
// per-channel goroutines that hand their results back to the loop, so a
// loop never blocks on the network.
//
// Inbound events (Active, Read, ReadComplete, Inactive, Error, UserEvent)
// travel from the head of the pipeline towards the tail. Outbound
// operations (Connect, Write, Flush, Read, Close) travel from the tail
// towards the head, where the Channel performs them.
package conn
