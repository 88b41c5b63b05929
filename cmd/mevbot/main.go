package main

import "mev-alerts/internal/cli"

func main() {
	cli.Execute()
}
