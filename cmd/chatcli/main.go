package main

import "github.com/gbsr/chappy/internal/cli"

func main() {
	cli.Execute()
}
