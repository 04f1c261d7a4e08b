// ABOUTME: Version and product constants
// ABOUTME: Advertised in TXT metadata and shown by the CLI
package version

const (
	// Version is the software version
	Version = "0.3.0"

	// Product is the product name
	Product = "yaba-sync"

	// Manufacturer identifies the application family
	Manufacturer = "Yaba"

	// ProtocolVersion is advertised as the TXT "version" value
	ProtocolVersion = "1.0"
)
