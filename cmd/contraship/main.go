package main

import (
	"os"

	"github.com/pendergraft/contraship/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
