// Package chat owns the in-memory conversation state of the client: the
// conversation list, the active conversation, and the pending-request and
// error flags shown to the user.
//
// A Controller mediates every user action. It mutates its state, persists the
// result through the conversation store, and notifies subscribers with a
// State snapshot. Subscribers receive copies and may call back into the
// Controller.
package chat
