package main

import (
	"os"

	"github.com/patricknitsch/grohe-smarthome/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
