/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/InfamousVague/umbra/cluster"
	"github.com/InfamousVague/umbra/internal"
)

func main() {
	cfg, err := internal.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := cluster.NewRelayNode(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create the relay: %v\n", err)
		os.Exit(1)
	}
	relay.SetCustomContext(ctx, stop)

	if err := relay.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not start the relay: %v\n", err)
		relay.Shutdown()
		os.Exit(1)
	}
	fmt.Printf("Relay %s listening on port %d (%s)\n", relay.GetId(), cfg.Port, cfg.Mode())

	<-ctx.Done()
	fmt.Printf("Shutting down...\n")
	relay.Shutdown()
}
