// Package topics maintains the bidirectional mapping between learners and
// their discussion threads in the instructor workspace.
//
// Lookups are cache-aside: memory first, durable store on a miss. Thread
// creation is serialized per learner so concurrent first calls cannot create
// duplicate threads. Durable-store write failures are logged and the mapping
// keeps serving from memory for the process lifetime.
package topics
