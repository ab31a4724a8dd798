// Package core runs CSV event files through the ledger and reports the
// outcome. It is shared by the CLI and the HTTP service and knows nothing
// about either.
//
// # Runs
//
// [Service.Run] is one complete pass over one input:
//
//  1. The input is wrapped to strip a BOM, sanitize UTF-8 and count bytes.
//  2. Records are parsed and applied by the ledger engine, on one goroutine
//     or on [config.LedgerConfig.Shards] workers.
//  3. Rejected events become [FailedRow]s; a malformed record aborts the run.
//  4. The accounts and counters are returned as a [RunResult] and, when a
//     store is configured, saved.
//
// Each run owns its ledger. Nothing is shared between runs except the
// [RunLimiter] that bounds how many execute at once.
//
// # Error Handling
//
// Technical errors are mapped to coded messages with [MapError]:
//
//   - LED001-LED010: rejected events (insufficient funds, bad dispute, ...)
//   - VAL, FILE: malformed input
//   - RUN, UPL: run and request lifecycle
package core
