// agentsafe — policy enforcement point for autonomous agent tool calls.
package main

import "github.com/ppiankov/agentsafe/internal/cli"

func main() {
	cli.Execute()
}
