package main

import "github.com/mcoot/skirmish/internal/cli"

func main() {
	cli.Execute()
}
