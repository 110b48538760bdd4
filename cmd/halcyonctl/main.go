// Command halcyonctl administers a HALCYON deployment: schema
// migrations, profile and cost inspection, session tokens and credit
// grants.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(newCommandContext(nil))
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
