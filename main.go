package main

import "github.com/mselser95/polymarket-updown/cmd"

func main() {
	cmd.Execute()
}
