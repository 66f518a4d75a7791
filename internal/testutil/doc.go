// Package testutil provides test helpers: a mock upstream server with
// request capture, canned JSON replies, a fake sleeper for deterministic
// retry timing, and preconfigured resilient clients.
//
// Not intended for use outside this module's tests.
package testutil
