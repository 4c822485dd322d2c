package main

import "github.com/colthorp/teampulse-go/internal/cli"

func main() {
	cli.Execute()
}
