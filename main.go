package main

import (
	"os"

	"github.com/kebairia/dockdump/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
