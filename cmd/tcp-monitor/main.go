package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"messenger/pkg/models"
)

// tcp-monitor tails the message feed and prints one line per persisted message.
func main() {
	addr := "127.0.0.1:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected to message feed:", addr)
	fmt.Println("Waiting for messages...")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var evt models.MessageEvent
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			fmt.Println("raw:", sc.Text())
			continue
		}
		ts := time.UnixMilli(evt.Timestamp).Format(time.RFC3339)
		fmt.Printf("[%s] chat=%d sender=%d id=%d: %s\n", ts, evt.ChatID, evt.SenderID, evt.ID, evt.Text)
	}
	fmt.Println("Disconnected.")
}
