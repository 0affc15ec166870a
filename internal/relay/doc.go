// Package relay executes forward, notify, group-post and close-dialog effects
// and fans broadcasts out to the learner roster with per-recipient failure
// isolation.
package relay
