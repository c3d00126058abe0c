package main

import "github.com/bryanchriswhite/portalcast/cmd/portalcast/commands"

func main() {
	commands.Execute()
}
