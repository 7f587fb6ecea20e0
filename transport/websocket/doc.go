// Package websocket provides the real-time transport for memory-match rooms.
//
// The package uses a hub-and-spoke model where a central Hub owns every
// connection. Each connection has a read goroutine that forwards client
// messages to the session layer and a write goroutine that drains its send
// queue. Only the hub loop writes to send queues.
//
// Message Protocol:
//
// Every message is a JSON object with a "type" field.
//   - Incoming: {"type":"join","roomId":"den","password":"..."},
//     {"type":"leave"}, {"type":"toggleReady"},
//     {"type":"flip","tileId":3,"digest":"...","claimedMatches":2},
//     {"type":"usePowerUp","kind":"swap","targets":[1,4]},
//     {"type":"chat","text":"gg"}
//   - Outgoing: {"type":"pairMatched","room_id":"den","payload":{...}}
//
// A rejected message produces actionRejected for that connection only,
// with a machine readable reason such as not_your_turn or blocked.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	manager := session.NewManager(themes, session.WithPublisher(hub))
//	hub.SetHandler(manager)
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("user"), r.URL.Query().Get("name"))
//	})
//
// Connection Lifecycle:
//
// 1. Client connects with a user ID
// 2. Connection registered with hub
// 3. Client sends join and receives the joined snapshot
// 4. Client sends actions, receives room events
// 5. Losing the last connection of a user reports a disconnect, which
// opens the reconnect grace window in a running game
package websocket
