package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"messenger/internal/udpnotify"
)

func main() {
	server := "127.0.0.1:7070"
	if len(os.Args) > 1 {
		server = os.Args[1]
	}

	serverAddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolve:", err)
		os.Exit(1)
	}

	// Bind local port random (:0) để vừa send SUBSCRIBE vừa receive noti trên cùng socket
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		fmt.Fprintln(os.Stderr, "listen:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP([]byte("SUBSCRIBE"), serverAddr); err != nil {
		fmt.Fprintln(os.Stderr, "subscribe:", err)
		os.Exit(1)
	}

	// Ctrl-C: gửi UNSUBSCRIBE rồi thoát
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		_, _ = conn.WriteToUDP([]byte("UNSUBSCRIBE"), serverAddr)
		_ = conn.Close()
	}()

	fmt.Println("UDP monitor subscribed to:", server)
	fmt.Println("Local addr:", conn.LocalAddr().String())

	buf := make([]byte, 4096)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			fmt.Println("read error:", err)
			continue
		}
		var note udpnotify.Notification
		if err := json.Unmarshal(buf[:n], &note); err != nil {
			fmt.Printf("FROM %s: %s\n", from.String(), string(buf[:n]))
			continue
		}
		fmt.Printf("[%s] %s: %s\n", time.Unix(note.Timestamp, 0).Format(time.RFC3339), note.Type, note.Message)
	}
}
