// Package ws provides the relay hub that keeps the participants of a board
// in sync over WebSocket.
//
// The package implements:
//   - Hub: sequences, stores and fans out the events of one board
//   - HubManager: holds the hubs of all open boards
//   - Handler: upgrades connections and runs the read/write pumps
//   - Service: opens and closes boards on top of the hub manager
//
// Key properties:
//   - Total order: one lock per board covers sequencing, append and fan-out
//   - Late join: the replay is queued under the same lock as registration
//   - Self-exclusion: the sender gets an accepted receipt, never its own event
//   - Slow consumers are disconnected and recover through replay
package ws
