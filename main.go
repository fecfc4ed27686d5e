package main

import "call-relay/internal/cli"

func main() {
	cli.Execute()
}
