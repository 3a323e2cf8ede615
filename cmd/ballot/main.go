package main

import "commitreveal/cmd/ballot/cmd"

// Ballot is the voter-facing CLI for the commit-reveal API.
func main() {
	cmd.Execute()
}
