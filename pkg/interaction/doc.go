// Package interaction implements call correlation and the Moonraker
// printer object API on top of it.
//
// # Correlation
//
// Many calls share one WebSocket. The Correlator keeps a table of
// outstanding call ids, each with a single-use slot:
//
//	id := corr.NextID()
//	slot, _ := corr.Register(id)
//	// ... write the request frame ...
//	res := <-slot
//
// The read loop hands every response to Resolve. When the connection
// drops, FailAll fulfills every slot with the disconnect reason so no
// caller waits forever.
//
// # Client Usage
//
// The Client wraps any Caller (normally transport.Session):
//
//	client := interaction.NewClient(session)
//
//	// Discover loaded printer objects
//	topics, err := client.ListObjects(ctx)
//
//	// Subscribe and receive the priming snapshot
//	result, err := client.Subscribe(ctx, topics)
//
// Subscriptions are connection-scoped. After a reconnect the caller must
// subscribe again; Moonraker forgets them when the socket closes.
package interaction
