package main

import "github.com/datar-psa/goanchor/internal/cli"

func main() {
	cli.Execute()
}
