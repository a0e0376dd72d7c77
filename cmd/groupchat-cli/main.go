package main

import "groupchat/internal/cli"

func main() {
	cli.Execute()
}
