package main

import "github.com/jake-scott/findmy-relay/cmd"

func main() {
	cmd.Execute()
}
