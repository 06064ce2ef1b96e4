package main

import "github.com/wegfawefgawefg/notscheme-go/cmd/notscheme/cmd"

func main() {
	cmd.Execute()
}
