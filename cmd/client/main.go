/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/InfamousVague/umbra/internal"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/identity"
	"github.com/InfamousVague/umbra/internal/service"
	"github.com/InfamousVague/umbra/internal/transfer"
	"go.uber.org/zap"
)

// zapLogger adapts a sugared zap logger to the Logf interface of the services
type zapLogger struct{ *zap.SugaredLogger }

func (z zapLogger) Logf(format string, v ...any) { z.Infof(format, v...) }

type client struct {
	identity service.IdentityService
	friends  service.FriendService
	messages service.MessageService
	relay    *service.RelayClient
}

func main() {
	cfg, err := internal.LoadClientConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	var base *zap.Logger
	if cfg.LogPretty {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not build the logger: %v\n", err)
		os.Exit(1)
	}
	defer base.Sync()
	logger := zapLogger{base.Sugar().With("component", "client")}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorw("Client stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *internal.ClientConfig, logger zapLogger) error {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return err
	}

	var blobs data.BlobStore = data.NewDatabaseBlobStore()
	if cfg.Blob.Enabled() {
		minio, err := data.NewMinioBlobStore(ctx, cfg.Blob.Minio())
		if err != nil {
			return fmt.Errorf("Could not reach the blob store: %v", err)
		}
		blobs = minio
		logger.Logf("Chunks are stored in bucket %s on %s", cfg.Blob.Bucket, cfg.Blob.Endpoint)
	}

	storage, err := data.OpenClientStorage(cfg.StorageDriver, cfg.DatabasePath(), blobs, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	defer storage.Close()

	rt := service.NewRuntimeContext(storage, nil)
	rt.SetLogger(logger)
	sink := service.NewChannelSink()
	rt.SetEventSink(sink)
	defer sink.Close()

	c := &client{
		identity: service.NewIdentityService(rt),
		friends:  service.NewFriendService(rt),
		messages: service.NewMessageService(rt),
	}
	me, err := c.loadIdentity(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", me.Did, me.DisplayName)

	files := service.NewFileService(rt)
	keys := service.NewChannelKeyService(rt)
	dispatcher := service.NewDispatcher(rt, service.Services{
		Friends:   c.friends,
		Messages:  c.messages,
		Keys:      keys,
		Channels:  service.NewChannelMessageService(rt, keys),
		Transfers: service.NewTransferService(rt, files, transfer.NewManager(transfer.DefaultLimits())),
	})

	c.relay, err = service.ConnectRelay(ctx, cfg.RelayURL, rt, dispatcher)
	if err != nil {
		return err
	}
	defer c.relay.Close()

	errs := make(chan error, 1)
	go func() { errs <- c.relay.Run(ctx) }()
	go printEvents(ctx, sink)
	go c.readCommands(ctx, stopOnQuit(ctx, errs))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

// stopOnQuit returns the function the command loop calls on "quit"
func stopOnQuit(ctx context.Context, errs chan<- error) func() {
	return func() {
		select {
		case errs <- nil:
		case <-ctx.Done():
		}
	}
}

// loadIdentity restores the identity from the phrase file, or creates one and writes its phrase there
func (c *client) loadIdentity(cfg *internal.ClientConfig) (*identity.PublicIdentity, error) {
	stored, err := os.ReadFile(cfg.PhraseFile)
	if err == nil {
		return c.identity.Restore(strings.TrimSpace(string(stored)), cfg.DisplayName)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	me, phrase, err := c.identity.Create(cfg.DisplayName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PhraseFile), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(cfg.PhraseFile, []byte(phrase+"\n"), 0600); err != nil {
		return nil, err
	}
	fmt.Printf("New identity created, recovery phrase stored in %s\n", cfg.PhraseFile)
	return me, nil
}

func printEvents(ctx context.Context, sink *service.ChannelSink) {
	for {
		event, ok := sink.Next(ctx)
		if !ok {
			return
		}
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Printf("event %s\n", line)
	}
}

const usage = `commands:
  friend <did> [message]     send a friend request
  requests <incoming|outgoing>
  accept <request id>
  friends
  conversations
  send <conversation id> <text>
  messages <conversation id>
  quit`

// readCommands runs the line oriented console until stdin closes or quit is typed
func (c *client) readCommands(ctx context.Context, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			quit()
			return
		}
		result, err := c.execute(fields)
		if err != nil {
			fmt.Printf("error %v\n", err)
			continue
		}
		line, _ := json.Marshal(result)
		fmt.Printf("ok %s\n", line)
	}
}

func (c *client) execute(fields []string) (any, error) {
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "friend":
		var message *string
		if len(fields) > 2 {
			text := strings.Join(fields[2:], " ")
			message = &text
		}
		request, _, err := c.friends.SendRequest(arg(1), message)
		return request, err
	case "requests":
		return c.friends.ListRequests(arg(1))
	case "accept":
		friend, _, err := c.friends.Accept(arg(1))
		return friend, err
	case "friends":
		return c.friends.ListFriends()
	case "conversations":
		return c.messages.ListConversations()
	case "send":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: send <conversation id> <text>")
		}
		message, _, err := c.messages.Send(arg(1), strings.Join(fields[2:], " "), nil)
		return message, err
	case "messages":
		return c.messages.Messages(arg(1), 50, 0)
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", fields[0], usage)
	}
}
