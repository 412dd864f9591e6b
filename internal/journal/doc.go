// Package journal persists inbound realtime envelopes to PostgreSQL.
//
// The Writer is a dispatch.Recorder: Record never blocks the channel read
// goroutine. Envelopes are buffered, batched and inserted with
// ON CONFLICT (event_id) DO NOTHING, so replayed frames are stored once.
// When the buffer is full new envelopes are dropped and counted.
package journal
