// ABOUTME: yaba-sync wire protocol package
// ABOUTME: Defines device identity, sync messages, codec and error taxonomy
// Package protocol implements the yaba-sync wire protocol.
//
// Messages are untagged JSON objects sent one per TCP connection. A
// receiver classifies a payload by strict trial decoding in the order
// request, response, data.
//
// Example:
//
//	data, err := protocol.Encode(protocol.NewSyncRequest(self, "c1"))
//	msg, err := protocol.Classify(data)
package protocol
