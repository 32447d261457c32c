// Package backend defines the crypto backend contract and the Adapter that
// every lockbox component calls through.
//
// Implementations live in subpackages: openpgp for real OpenPGP keys and
// memory for tests. The Adapter never interprets ciphertext itself. It
// validates input, bounds each attempt with a timeout, retries transient
// failures (ErrBackendTimeout, ErrBackendUnavailable) with exponential
// backoff, and passes authorization failures through unchanged so they are
// never mistaken for an outage.
package backend
