package main

import (
	"terminwatch/cmd/terminwatch/cmd"
)

func main() {
	cmd.Execute()
}
