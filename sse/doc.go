// Package sse streams server-sent events to HTTP clients.
//
// A Hub owns the connected clients and routes each broadcast to the clients
// whose id matches a glob pattern, so several views can share one hub under
// prefixes such as "trades:*". Serve handles one request: it registers the
// client, writes the connected event and an initial snapshot, then relays
// broadcasts until the request ends. A client that cannot keep up is
// dropped rather than silently missing events.
//
//	c := sse.NewComponent("/trades/events", log)
//	registry.Register(c)
//	router.GET("/trades/events", func(ctx *gin.Context) {
//	    sse.Serve(c.Hub(), ctx.Writer, ctx.Request, sse.Stream{ClientID: "trades:" + id})
//	})
package sse
