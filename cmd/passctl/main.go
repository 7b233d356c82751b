package main

import "github.com/stampwise/passd/internal/cli"

func main() {
	cli.Execute()
}
