/*
Package ports defines the driven ports (interfaces) for the Passbook runtime.

These interfaces decouple the supervisor and the applications from external
implementations, allowing the pool to run on OS processes or in-process
goroutines and the analyzer to cache against Redis or memory.

# Key Interfaces

  - Launcher: Responsible for spawning workers of one class (process or inline).
  - Handle: One live worker, addressable for readiness, exit, drain, and kill.
  - Cache: Digest-keyed storage for analysis results.
  - FormatLoader: Responsible for loading statement format packs (e.g., from Loam or built-ins).
*/
package ports
