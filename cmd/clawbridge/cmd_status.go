package main

import (
	"fmt"
	"os"
	"time"
)

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Clawbridge status")
	fmt.Println()
	fmt.Printf("  Enabled:    %v\n", cfg.Bridge.Enabled)
	fmt.Printf("  Transport:  %s\n", cfg.Transport.Kind)
	fmt.Printf("  Engine:     %s\n", cfg.Engine.Kind)

	status := cfg.Bridge.Status
	if status == "" {
		status = "unknown"
	}
	fmt.Printf("  Connection: %s\n", status)

	if cfg.Bridge.OwnerJID != "" {
		fmt.Printf("  Owner:      %s\n", cfg.Bridge.OwnerJID)
	}
	if cfg.Bridge.OwnerLID != "" {
		fmt.Printf("  Owner LID:  %s\n", cfg.Bridge.OwnerLID)
	}
	if cfg.Bridge.LastConnectedAt > 0 {
		t := time.UnixMilli(cfg.Bridge.LastConnectedAt)
		fmt.Printf("  Last seen:  %s\n", t.Format(time.RFC3339))
	}
}
