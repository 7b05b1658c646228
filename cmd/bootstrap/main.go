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

	"github.com/InfamousVague/umbra/cluster/bootstrap"
	"github.com/InfamousVague/umbra/internal"
)

func main() {
	cfg, err := internal.LoadRegistryConfig("bootstrap", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry, err := bootstrap.NewBootstrapNode(cfg.LogFile, cfg.StateFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create the registry: %v\n", err)
		os.Exit(1)
	}
	if err := registry.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not load %s: %v\n", cfg.StateFile, err)
		os.Exit(1)
	}

	fmt.Printf("Bootstrap registry listening on port %d\n", cfg.GRPCPort)
	if err := registry.StartBootstrap(ctx, cfg.GRPCPort); err != nil {
		fmt.Fprintf(os.Stderr, "Registry stopped: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Shutting down...\n")
}
