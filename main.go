package main

import "github.com/memoist-io/idserver/cmd"

func main() {
	cmd.Execute()
}
