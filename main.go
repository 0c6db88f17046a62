package main

import "github.com/w4lkr/shopsync/cmd"

func main() {
	cmd.Execute()
}
