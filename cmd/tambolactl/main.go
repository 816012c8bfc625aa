package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/23f2000792/tambola/internal/protocol"
	"github.com/nats-io/nats.go"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	if cmd == "version" {
		fmt.Println(version)
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	server := fs.String("server", nats.DefaultURL, "Bus server URL")
	session := fs.String("session", "", "Session id (daemon default when empty)")
	timeout := fs.Duration("timeout", 60*time.Second, "Request timeout")
	fs.Parse(os.Args[2:])

	nc, err := nats.Connect(*server, nats.Name("tambolactl"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *server, err)
		os.Exit(1)
	}
	defer nc.Close()

	switch cmd {
	case "next":
		err = runNext(nc, *session, *timeout)
	case "reset":
		err = runReset(nc, *session, *timeout)
	case "snapshot":
		err = runSnapshot(nc, *session, *timeout)
	case "watch":
		err = runWatch(nc, *session, *timeout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tambolactl <next|reset|snapshot|watch|version> [flags]")
}

func runNext(nc *nats.Conn, session string, timeout time.Duration) error {
	var result protocol.CallResult
	if err := request(nc, protocol.SubjectCallNext, protocol.CallRequest{SessionID: session}, &result, timeout); err != nil {
		return err
	}
	if result.GameOver {
		fmt.Println("game over: all numbers have been called")
		return nil
	}
	if result.Error != "" {
		return fmt.Errorf("call failed: %s", result.Error)
	}
	fmt.Printf("called %d (audio: %v)\n", result.Number, result.HadAudio)
	return nil
}

func runReset(nc *nats.Conn, session string, timeout time.Duration) error {
	var result protocol.CallResult
	if err := request(nc, protocol.SubjectReset, protocol.ResetRequest{SessionID: session}, &result, timeout); err != nil {
		return err
	}
	if result.Error != "" {
		return fmt.Errorf("reset failed: %s", result.Error)
	}
	fmt.Printf("session %s reset\n", result.SessionID)
	return nil
}

func runSnapshot(nc *nats.Conn, session string, timeout time.Duration) error {
	var snap protocol.Snapshot
	if err := request(nc, protocol.SubjectSnapshot, protocol.SnapshotRequest{SessionID: session}, &snap, timeout); err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func runWatch(nc *nats.Conn, session string, timeout time.Duration) error {
	var snap protocol.Snapshot
	if err := request(nc, protocol.SubjectSnapshot, protocol.SnapshotRequest{SessionID: session}, &snap, timeout); err != nil {
		return err
	}
	printSnapshot(snap)

	updates := make(chan protocol.Snapshot, 16)
	sub, err := nc.Subscribe(protocol.StateSubject(snap.SessionID), func(msg *nats.Msg) {
		var s protocol.Snapshot
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			return
		}
		select {
		case updates <- s:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	last := snap.Revision
	for {
		select {
		case s := <-updates:
			if s.Revision <= last {
				continue
			}
			last = s.Revision
			printSnapshot(s)
		case <-sig:
			return nil
		}
	}
}

func request(nc *nats.Conn, subject string, req, reply any, timeout time.Duration) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	msg, err := nc.Request(subject, data, timeout)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	return json.Unmarshal(msg.Data, reply)
}

func printSnapshot(snap protocol.Snapshot) {
	current := "-"
	if snap.CurrentNumber != nil {
		current = fmt.Sprintf("%d", *snap.CurrentNumber)
	}
	called := make([]string, 0, len(snap.CalledNumbers))
	for _, n := range snap.CalledNumbers {
		called = append(called, fmt.Sprintf("%d", n))
	}
	fmt.Printf("session=%s rev=%d current=%s called=[%s]\n",
		snap.SessionID, snap.Revision, current, strings.Join(called, " "))
}
