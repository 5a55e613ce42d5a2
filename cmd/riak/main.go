// Command riak is a command line client for the Riak protocol-buffers
// interface.
//
// Flags can also be set from the environment with the RIAK_ prefix
// (RIAK_NODES=10.0.0.1:8087,10.0.0.2:8087), from .env and .env.local in
// the working directory, or from a config file given with --config.
package main

import (
	"os"
)

func main() {
	if err := newApp(os.Stdout).execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
