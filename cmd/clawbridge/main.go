// ClawBridge - self-chat to agent task bridge
// License: MIT
//
// Copyright (c) 2026 ClawBridge contributors

package main

import (
	"fmt"
	"os"
	"runtime"

	"clawbridge/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
)

const logo = "🦀"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "gateway":
		gatewayCmd()
	case "status":
		statusCmd()
	case "version", "--version", "-v":
		printVersion()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printVersion() {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	fmt.Printf("%s clawbridge %s\n", logo, v)
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Printf("%s clawbridge - chat self-channel to task agent bridge v%s\n\n", logo, version)
	fmt.Println("Usage: clawbridge <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  gateway     Connect the channel transport and run the bridge")
	fmt.Println("  status      Show persisted bridge status")
	fmt.Println("  version     Show version information")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(config.DefaultConfigPath())
}
