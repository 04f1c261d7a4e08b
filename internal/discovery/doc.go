// ABOUTME: mDNS service discovery for yaba-sync peers
// ABOUTME: Advertise the local sync endpoint and browse for other devices
// Package discovery advertises and browses _yaba-sync._tcp services.
//
// The Advertiser owns the sync listening socket and its mDNS publication.
// The Browser runs bounded browse rounds and reports instances as found or
// removed once they go unseen. Both work through a Backend, with
// hashicorp/mdns and grandcat/zeroconf implementations.
//
// Example:
//
//	backend, _ := discovery.NewBackend("mdns")
//	browser := discovery.NewBrowser(backend, discovery.BrowserConfig{})
//	events, _ := browser.Start(ctx)
//	for ev := range events {
//	    fmt.Printf("%s: %s\n", ev.Kind, ev.Instance)
//	}
package discovery
