// ABOUTME: High-level yaba-sync library API
// ABOUTME: Provides the Service that discovers peers and exchanges sync messages
// Package yabasync discovers yaba devices on the local network and exchanges
// sync messages with them.
//
// A Service advertises the local device over mDNS as _yaba-sync._tcp, browses
// for other devices, keeps a sorted peer list and listens for one-message TCP
// connections. Incoming messages arrive on typed streams:
//   - Requests: sync requests from peers
//   - Responses: answers to requests
//   - Data: synchronized payloads
//   - Errors: undecodable or timed out inbound connections
//
// For the message types and codec, see the protocol package.
//
// Example:
//
//	svc, err := yabasync.NewService(yabasync.Config{})
//	err = svc.StartDiscovery(ctx, protocol.Identity{ID: "A1", Name: "Alpha", Type: protocol.DeviceTypeDesktop})
//	for peers := range svc.SubscribePeers(ctx) {
//	    for _, p := range peers {
//	        svc.SendSyncRequest(ctx, protocol.NewSyncRequest(id, "bookmarks"), p)
//	    }
//	}
package yabasync
