package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: btsinkd [-config <path>] <daemon|status>")
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "daemon":
		err = runDaemon(*configFlag)
	case "status":
		err = runStatus(*configFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
