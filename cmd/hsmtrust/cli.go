package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "chain":
		if len(args) >= 3 {
			switch args[2] {
			case "init":
				return runChainInit(args[3:])
			case "rotate":
				return runChainRotate(args[3:])
			}
		}
	case "authorize":
		return runAuthorize(args[2:])
	case "verify":
		return runVerify(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "hsmtrust"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s chain init --state-dir <dir> [--redis <addr>] [--redis-db <n>] [--purpose <purpose>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s chain rotate --state-dir <dir> [--redis <addr>] [--redis-db <n>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s authorize --state-dir <dir> --identity <id> --public-key <cesr> [--ttl <duration>] [--redis <addr>] [--redis-db <n>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --identity <prefix> --generation-id <id> --signature <cesr> (--message <text>|--message-file <path>) [--redis <addr>] [--redis-db <n>]\n", name)
}
