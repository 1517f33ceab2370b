// Command aictl administers the AI core: API keys, the provider registry,
// the job ledger and ad hoc calls.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
