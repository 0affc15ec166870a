// Package engine implements the per-participant conversation state machine.
//
// # Transition
//
// The single entry point is Transition:
//
//	next, effects := eng.Transition(participant, session, inbound, role)
//
// Transition is pure: it reads its inputs and returns the next session (nil
// means back to idle) plus an ordered list of side effects. The service layer
// persists the session and executes the effects; the engine itself never
// touches storage or the transport.
//
// # Two-step commit
//
// Every mutating action stages its input in the session payload and requires
// an explicit confirm intent before the mutation effect is emitted:
//
//	SetHomework -> AwaitingContent -> AwaitingConfirm -> PersistContent
//	NewResult   -> name -> grammar -> wordlist -> AwaitingResultConfirm -> UpsertResult
//	BroadcastAll -> AwaitingBroadcastText -> confirm -> Broadcast
//
// A cancel intent discards the staged payload and returns to idle with no
// side effect.
//
// # Validation
//
// Invalid input (name too short, percentage outside [0,100], mismatched
// contact) re-prompts without a state change. Validation failures are always
// local and recoverable.
//
// # Dialog relay
//
// A learner in dialog has every message forwarded verbatim to their topic
// thread; the instructor's messages inside a thread are forwarded to the
// owning learner without any instructor-side session, so many dialogs can be
// open at once. The finish intent emits CloseDialog; the relay router clears
// both sessions and notifies both ends.
package engine
