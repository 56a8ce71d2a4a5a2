// Command strandcat is a reference client/server for strand: it drives a
// handshake, opens a single reliable-ordered stream, and relays stdin to
// the wire and the wire to stdout. It lives outside the transport core by
// design — the core stays single-threaded and caller-driven, while this
// driver owns the goroutines, sockets, and timers that a real deployment
// needs.
package main

func main() {
	Execute()
}
