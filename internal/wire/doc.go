// Package wire defines the JSON protocol spoken with the wallet backend.
//
// Inbound frames are Envelopes whose "type" selects one variant of the sealed
// Event interface. Outbound frames are small fixed command objects
// (ping, subscribe_transactions, get_wallet_status, subscribe_bot_updates).
package wire
