// Command eventsock serves and consumes periodic WebSocket status events.
package main

import (
	"fmt"
	"os"

	"github.com/getmockd/eventsock/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
