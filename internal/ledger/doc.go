// Package ledger derives client account balances from an ordered stream of
// financial events.
//
// The package holds no I/O. Callers feed it events through a [Source] and
// read back the resulting [Account] table once the stream is exhausted.
//
// # Event Flow
//
// The [Engine] consumes events strictly in arrival order:
//
//  1. The event is appended to the [EventLog].
//  2. It is dispatched to the handler for its [Kind].
//  3. A handler failure is reported to the configured [Observer] and the
//     engine moves on to the next event.
//
// Handler failures are semantic: they leave every balance untouched and never
// stop the run. Errors returned by the [Source] are structural and abort the
// run immediately.
//
// # Disputes
//
// Deposits and withdrawals can be disputed by referencing their transaction
// id. A dispute moves the amount into held funds, a resolve releases it again
// and a chargeback removes it from the account and locks the account:
//
//	Undisputed --dispute--> Disputed --resolve----> Undisputed
//	                                 \--chargeback-> ChargedBack
//
// A charged back transaction is final: a later dispute of it fails with
// [ErrNotDisputable] and it never returns to Undisputed.
//
// References are resolved against the first event logged under the id,
// whatever its kind. A dispute that arrives before the deposit it names
// therefore claims the id, and later references to it fail with
// [ErrMissingAmount].
//
// # Sharding
//
// No handler ever touches more than one client, so [RunSharded] may split a
// stream by client id and process the partitions in parallel. Per-client
// ordering is preserved and transaction ids are looked up within the client's
// own stream, so the result does not depend on how many shards are used. It
// equals a sequential run whenever transaction ids are unique across clients.
package ledger
