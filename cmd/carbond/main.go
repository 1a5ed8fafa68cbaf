package main

import "github.com/cct-network/carbond/internal/cli"

func main() {
	cli.Execute()
}
