// Package api provides the HTTP REST API and WebSocket server for Weft.
//
// The REST surface is a thin adapter: endpoint resource requests are
// translated into transport requests and handed to the protocol server,
// whose response codes map straight onto HTTP status codes. The WebSocket
// hub relays live property changes to subscribed clients.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
