// Package durable provides a durable workflow orchestration engine for
// pipelines of long-running, failure-prone activities.
//
// A workflow is an ordinary Go function that schedules named activities
// through an engine context. Every invocation outcome is appended to a
// crash-surviving history before its result is handed back to the
// workflow, so a process restart replays the workflow code from the top
// while short-circuiting every activity that already completed.
// Activities with side effects (paid LLM calls, external writes)
// therefore execute at most effectively once.
//
// # Quick Start
//
//	runner := engine.NewRunner(reg, acts, memory.New(),
//	    engine.WithLogger(logger),
//	)
//
// # Architecture
//
// Subsystems are small packages composed by the engine: history defines
// the append-only execution log and its store interface, activity defines
// the invoker boundary, retry evaluates per-step retry policy using a
// backoff strategy, and middleware wraps every invocation attempt with
// cross-cutting behavior (logging, panic recovery, timeout, tracing).
// A single store backend (memory, bun/Postgres, redis) implements the
// whole history.Store contract.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package durable
