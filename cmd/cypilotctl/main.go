// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// cypilotctl is the command-line control client for a running
// cypilotd: with no arguments it lists every registered value, a bare
// name watches that value and prints its payload, and name=value
// writes the payload to the store.
//
//	cypilotctl                              list all values
//	cypilotctl ap.heading servo.flags       print current payloads
//	cypilotctl -continuous ap.heading       stream updates until ^C
//	cypilotctl ap.heading_command=120       write a value
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
)

const connectTimeout = 5 * time.Second

// clientConf is the single-line JSON {host, port} file a UI or
// installer drops next to the other cypilot configs.
type clientConf struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func main() {
	hostFlag := flag.String("host", "", "value store host (overrides -config)")
	portFlag := flag.Int("port", 0, "value store port (overrides -config)")
	confPath := flag.String("config", "cypilot_client.conf", "path to the client {host, port} file")
	continuous := flag.Bool("continuous", false, "keep watching and printing updates until interrupted")
	flag.Parse()

	log.SetFlags(0)

	host, port := "localhost", store.DefaultPort
	if data, err := os.ReadFile(*confPath); err == nil {
		var cc clientConf
		if err := json.Unmarshal(data, &cc); err != nil {
			log.Fatalf("cypilotctl: bad client config %s: %v", *confPath, err)
		}
		if cc.Host != "" {
			host = cc.Host
		}
		if cc.Port != 0 {
			port = cc.Port
		}
	}
	if *hostFlag != "" {
		host = *hostFlag
	}
	if *portFlag != 0 {
		port = *portFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := store.NewClient(net.JoinHostPort(host, strconv.Itoa(port)))
	go client.Run(ctx)
	waitConnected(ctx, client)

	if flag.NArg() == 0 {
		listValues(client)
		return
	}

	var watched []string
	for _, arg := range flag.Args() {
		if name, raw, ok := strings.Cut(arg, "="); ok {
			if err := client.Set(name, parsePayload(raw)); err != nil {
				log.Fatalf("cypilotctl: set %s: %v", name, err)
			}
			continue
		}
		if err := client.Watch(arg, 0); err != nil {
			log.Fatalf("cypilotctl: watch %s: %v", arg, err)
		}
		watched = append(watched, arg)
	}
	if len(watched) == 0 {
		return
	}

	printUpdates(ctx, client, watched, *continuous)
}

func waitConnected(ctx context.Context, client *store.Client) {
	deadline := time.Now().Add(connectTimeout)
	for !client.Connected() {
		if time.Now().After(deadline) {
			log.Fatalf("cypilotctl: no server within %s", connectTimeout)
		}
		select {
		case <-ctx.Done():
			os.Exit(1)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// parsePayload decodes a command-line value the way it would arrive on
// the wire: JSON if it parses, a bare string otherwise, so both
// `ap.heading_command=120` and `ap.mode=wind` do what they look like.
func parsePayload(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func listValues(client *store.Client) {
	table, err := client.ListValues(connectTimeout)
	if err != nil {
		log.Fatalf("cypilotctl: list values: %v", err)
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info, _ := table[name].(map[string]any)
		typ, _ := info["type"].(string)
		fmt.Printf("%-40s %s\n", name, typ)
	}
}

func printUpdates(ctx context.Context, client *store.Client, watched []string, continuous bool) {
	pending := make(map[string]struct{}, len(watched))
	for _, name := range watched {
		pending[name] = struct{}{}
	}
	timeout := time.After(connectTimeout)

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-client.Updates():
			body, err := json.Marshal(u.Value)
			if err != nil {
				body = []byte(fmt.Sprint(u.Value))
			}
			fmt.Printf("%s = %s\n", u.Name, body)
			if !continuous {
				delete(pending, u.Name)
				if len(pending) == 0 {
					return
				}
			}
		case <-timeout:
			if !continuous {
				var missing []string
				for name := range pending {
					missing = append(missing, name)
				}
				sort.Strings(missing)
				log.Fatalf("cypilotctl: no payload for %s within %s", strings.Join(missing, ", "), connectTimeout)
			}
		}
	}
}
