// Smoke-tests a hub: provisions a guest session, sends one message to the
// default linkman and prints every push received until the timeout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/asima2006/fiora-sync/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:9200/ws", "hub WebSocket address")
	to := flag.String("to", "", "linkman id to message (default: first roster entry)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	seq := uint64(0)
	call := func(event string, payload any) (json.RawMessage, error) {
		seq++
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Frame{Seq: seq, Event: event, Data: data}); err != nil {
			return nil, fmt.Errorf("send %s: %w", event, err)
		}
		for {
			var frame proto.Frame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}
			if frame.Seq == 0 {
				fmt.Printf("push %s: %s\n", frame.Event, frame.Data)
				continue
			}
			if frame.Error != "" {
				return nil, fmt.Errorf("%s rejected: %s", event, frame.Error)
			}
			return frame.Data, nil
		}
	}

	raw, err := call(proto.EventGuest, proto.GuestRequest{DeviceID: "ws-smoke"})
	if err != nil {
		return err
	}
	var user proto.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return fmt.Errorf("decode guest payload: %w", err)
	}
	fmt.Printf("guest session: %s (%s)\n", user.Username, user.ID)

	target := *to
	if target == "" && len(user.Groups) > 0 {
		target = user.Groups[0].ID
	}
	if target == "" {
		return fmt.Errorf("no target linkman; pass -to")
	}

	if _, err := call(proto.EventSendMessage, proto.SendMessageRequest{
		To:      target,
		Type:    "text",
		Content: *text,
	}); err != nil {
		return err
	}
	fmt.Printf("sent %q to %s\n", *text, target)

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if frame.Seq == 0 {
			fmt.Printf("push %s: %s\n", frame.Event, frame.Data)
		}
	}
}
