package main

import (
	"openhowl/cmd"
)

func main() {
	cmd.Execute()
}
