package main

import "github.com/lepinkainen/shelfscout/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
