package main

import "github.com/julienar/peblar-bridge/cmd"

func main() {
	cmd.Execute()
}
