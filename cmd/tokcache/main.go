package main

import (
	"flag"
	"fmt"
	"os"

	"tokcache/internal/di"
	"tokcache/internal/structures"
)

func main() {
	flags := &structures.CliFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config/config.yml", "path to the YAML config file")
	flag.BoolVar(&flags.DebugMode, "debug", false, "also log to stdout")
	flag.Parse()

	_, cleanup, err := di.InitApp(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokcache: %v\n", err)
		os.Exit(1)
	}
	cleanup()
}
