// Command xrpcd runs an XRPC dispatch server: it loads a lexicon
// directory, wires the rate limiter, demo identity store, and telemetry
// exporters described by its config file, and serves the resulting
// dispatcher over HTTP and WebSocket.
package main

import "github.com/xrpc-run/xrpcd/cmd/xrpcd/cmd"

func main() {
	cmd.Execute()
}
