package main

import (
	"os"

	"github.com/wegman-software/geojson2mvt-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
