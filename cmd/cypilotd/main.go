// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/cypilot/internal/config"
	"github.com/relabs-tech/cypilot/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "cypilot_config.txt", "path to cypilotd config file")
	flag.Parse()

	log.Println("starting cypilotd")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sup, err := supervisor.New(config.Get())
	if err != nil {
		log.Fatalf("failed to start subsystems: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("cypilotd shutting down")
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("fatal: %v", err)
	}
}
