package main

import "github.com/oshokin/nearby-handshake/cmd/nearby-status/cmd"

func main() {
	cmd.Execute()
}
