// Package chat implements Ripple's message ordering and delivery engine.
//
// It is the single authoritative path for accepting a message into a
// conversation, regardless of whether the request arrived over REST or over a
// websocket: both adapters call the same Service. Persisting a message and
// advancing the conversation's last-message pointer happen as one logical
// unit; fan-out to connected peers happens after, and a broadcast failure
// never affects the persisted message.
package chat
