package main

import "github.com/wirehttp/wirehttp/cmd"

func main() {
	cmd.Execute()
}
