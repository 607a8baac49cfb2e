/*
Package passbook bootstraps a container web process: it provisions declared
dependencies into a content-addressed store before the application starts,
then binds one TCP socket and supervises a pool of workers that accept from
it.

It implements a pre-fork supervision contract: the master process owns the
listening socket for its whole life, workers only ever accept from inherited
or duplicated descriptors, and a crashed worker is replaced under an
exponential backoff budget without disturbing its siblings.

# Concept

A passbook deployment has two phases. At build time, `passbook provision`
resolves a flat manifest of format packs against a published index, verifies
every artifact digest, and commits the set to a loam store in one
transaction. At run time, `passbook serve` binds the socket (flag, PORT, or
config file), launches N workers, and routes the pool through readiness,
drain, restart, and rolling reload. The application itself is a registered
factory; the flagship is a bank statement analyzer.

# Key Properties

  - One bind: exactly one socket bind per pool, owned by the supervisor.
  - Contained faults: a worker crash loses only its in-flight requests.
  - Bounded everything: boot, drain, restarts, and in-flight work all carry
    explicit budgets.
  - All-or-nothing provisioning: a failed run leaves the store untouched.

# Usage

The library face runs inline workers inside the calling process. The process
worker class (real OS children) is the CLI's job.

	package main

	import (
		"context"
		"log"
		"os/signal"
		"syscall"

		"github.com/passbooklabs/passbook"
	)

	func main() {
		svc, err := passbook.New(":8080", passbook.WithWorkers(4))
		if err != nil {
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Blocks until the signal arrives and the pool has drained.
		if err := svc.Run(ctx); err != nil {
			log.Fatal(err)
		}
	}
*/
package passbook
