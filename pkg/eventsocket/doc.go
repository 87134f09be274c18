// Package eventsocket implements the per-connection event socket handler.
//
// A new EventSocket is created for every accepted connection. On connect it
// starts pushing a JSON Status message to the client every Interval for as
// long as the session stays open. A text message containing the close
// keyword ("bye" by default, case-insensitive) makes it close the session
// with 1000 and the close reason ("Thanks"). When the session closes, the
// closure latch is released and AwaitClosure returns.
//
//	sock := eventsocket.New(eventsocket.Options{Logger: log})
//	endpoint, _ := websocket.NewEndpoint(cfg, func() websocket.Handler { return sock })
//	...
//	err := sock.AwaitClosure(ctx)
package eventsocket
