// Command leapbase is the CLI entry point.
package main

import "github.com/leapstack-labs/leapbase/internal/cli"

func main() {
	cli.Execute()
}
