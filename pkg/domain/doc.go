package domain

// domain package contains the Domain Models for the RelMon service.
//
// `domain/ENTITY.go` has entities (Domain Model types) and their state transitions.
// They never perform I/O.
//
// `domain/ENTITY/db` directory contains the interface to store the entity,
// and its implementations (`postgres`, `sqlite`, `memory`) and a `mock` for tests.
//
// # Entities
//
// - `RelMon`: one comparison job. It is created as "new", submitted to the scheduler by the controller,
// reported "running" and "finishing" by the worker, and gets "done" (or "failed") when outputs are collected.
// RelMon also tracks the scheduler's view of its job as CondorStatus, independently from its own status.
//
// - `Category`: named partition of a RelMon. It has two sides of the comparison, "reference" and "target".
//
// - `Item`: one workflow or dataset in a side of a Category. The worker resolves it into a file.
