package main

import (
	"github.com/mreed/kybgate/cmd/kybgate/cmd"
)

func main() {
	cmd.Execute()
}
