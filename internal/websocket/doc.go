// Package websocket is the socket transport behind every device channel.
//
// Each Open call owns one golang.org/x/net/websocket connection and a reader
// goroutine that turns the connection's life into channel events: one Opened,
// one MessageReceived per frame, and exactly one Closed.
package websocket
