// Package recorder builds and writes audit records. Writes are
// synchronous and ordered: the recorder redacts sensitive parameter
// values, links each record into the hash chain, and blocks until the
// storage append completes. An action response is only released after
// Record returns.
//
// VerifyChain recomputes the chain over a stored sequence and reports
// the first record where tampering broke it.
package recorder
