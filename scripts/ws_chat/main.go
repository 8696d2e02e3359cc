package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/astrotv/astrotv-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "credential")
	handle := flag.String("broadcaster", "", "broadcaster handle to join")
	flag.Parse()

	if *token == "" || *handle == "" {
		return errors.New("-token and -broadcaster are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.Join{Credential: *token, BroadcasterHandle: *handle}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s, joining %s\n", *addr, *handle)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, msg proto.Inbound) error {
	data, err := proto.EncodeInbound(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame["type"] {
		case proto.OutboundTypeMessage:
			body, _ := frame["message"].(map[string]any)
			author, _ := body["author"].(map[string]any)
			fmt.Printf("[%v] %v: %v\n", author["tierName"], author["name"], body["text"])
		case proto.OutboundTypeViewerJoined:
			viewer, _ := frame["viewer"].(map[string]any)
			fmt.Printf("* %v joined (%v watching)\n", viewer["name"], frame["newCount"])
		case proto.OutboundTypeViewerLeft:
			fmt.Printf("* viewer %v left (%v watching)\n", frame["viewerId"], frame["newCount"])
		case proto.OutboundTypeTyping:
			user, _ := frame["user"].(map[string]any)
			if frame["isTyping"] == true {
				fmt.Printf("* %v is typing\n", user["name"])
			}
		case proto.OutboundTypeNotification:
			n, _ := frame["notification"].(map[string]any)
			fmt.Printf("! %v: %v\n", n["title"], n["message"])
		case proto.OutboundTypeError:
			fmt.Printf("error %v: %v\n", frame["code"], frame["message"])
		case proto.OutboundTypeInfo:
			fmt.Printf("info: %v\n", frame["message"])
		case proto.OutboundTypeViewerCountUpdate, proto.OutboundTypeHistory:
		default:
			fmt.Printf("frame=%v\n", frame)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := send(ctx, conn, proto.Chat{Text: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
