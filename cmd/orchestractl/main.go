// Command orchestractl is the operator-facing CLI over a jobforge storage
// root: creating, listing, inspecting, and retrying jobs directly against
// filesystem state, without requiring orchestrand to be running.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
