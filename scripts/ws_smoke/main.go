package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/astrotv/astrotv-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "credential (see `astrotv-server token`)")
	handle := flag.String("broadcaster", "", "broadcaster handle to join")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *handle == "" {
		return errors.New("-token and -broadcaster are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msg proto.Inbound) error {
		data, err := proto.EncodeInbound(msg)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := send(proto.Join{Credential: *token, BroadcasterHandle: *handle}); err != nil {
		return err
	}

	sentChat := false
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		typ, _ := frame["type"].(string)
		fmt.Printf("Received frame: type=%s\n", typ)

		switch typ {
		case proto.OutboundTypeError:
			return fmt.Errorf("server error %v: %v", frame["code"], frame["message"])
		case proto.OutboundTypeViewerCountUpdate:
			fmt.Printf("Viewers: %v\n", frame["count"])
		case proto.OutboundTypeHistory:
			msgs, _ := frame["messages"].([]any)
			fmt.Printf("History: %d messages\n", len(msgs))
			if !sentChat {
				sentChat = true
				if err := send(proto.Chat{Text: *text}); err != nil {
					return err
				}
			}
		case proto.OutboundTypeMessage:
			body, _ := frame["message"].(map[string]any)
			author, _ := body["author"].(map[string]any)
			fmt.Printf("Message: %v (%v): %q\n", author["name"], author["tierName"], body["text"])
			return send(proto.Leave{})
		}
	}
}
