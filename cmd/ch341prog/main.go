// Command ch341prog reads, writes, erases and verifies 24Cxx I2C EEPROMs
// through a CH341A USB bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/tebeka/atexit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(defaultRootOptions()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
