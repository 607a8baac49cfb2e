/*
Package domain contains the core domain models shared across Passbook.

It defines the worker lifecycle state machine the supervisor enforces and
the sentinel errors the adapters translate to. This package is kept pure
and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - WorkerState: One of the lifecycle states a supervised worker moves through.
  - WorkerStatus: A point-in-time snapshot of one worker, as reported by /status.
*/
package domain
