package main

import "github.com/vitalgate/vitalgate/internal/cli"

func main() {
	cli.Execute()
}
