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
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/InfamousVague/umbra/cluster/nameserver"
	"github.com/InfamousVague/umbra/internal"
)

func main() {
	cfg, err := internal.LoadRegistryConfig("nameserver", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	secret := []byte(cfg.SecretKey)
	if len(secret) == 0 {
		// Pinned browsers are reassigned after a restart
		secret = make([]byte, 32)
		rand.Read(secret)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ns := nameserver.NewNameServer(secret)
	fmt.Printf("Nameserver: gRPC on %d, HTTP on %d\n", cfg.GRPCPort, cfg.HTTPPort)
	if err := ns.Start(ctx, cfg.GRPCPort, cfg.HTTPPort); err != nil {
		fmt.Fprintf(os.Stderr, "Nameserver stopped: %v\n", err)
		os.Exit(1)
	}
}
