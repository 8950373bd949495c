package main

import (
	"github.com/wizai/InstallWiz/internal/cli"
	"os"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
