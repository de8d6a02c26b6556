// Package realtime is Ripple's websocket gateway.
//
// A connection authenticates with an access token at upgrade time and is
// placed into its personal user room. It may then join the rooms of
// conversations it belongs to; membership is checked against the chat engine
// on every join, not just at connect. Messages sent over the socket go
// through the same engine path as REST sends, and accepted messages fan out
// to every connected participant.
//
// Malformed frames are logged and dropped without a reply. An error envelope
// is sent only when a well-formed operation fails.
package realtime
