package main

import "github.com/oshokin/nearby-handshake/cmd/nearby-node/cmd"

func main() {
	cmd.Execute()
}
