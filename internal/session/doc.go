// Package session holds per-participant conversation state. The in-memory
// cache is authoritative; the durable store is a best-effort mirror used for
// crash recovery.
package session
