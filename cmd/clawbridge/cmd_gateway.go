package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clawbridge/pkg/bridge"
	"clawbridge/pkg/config"
	"clawbridge/pkg/dispatch"
	"clawbridge/pkg/engine"
	anthropicengine "clawbridge/pkg/engine/anthropic"
	"clawbridge/pkg/engine/claudecli"
	openaiengine "clawbridge/pkg/engine/openai"
	"clawbridge/pkg/logger"
	"clawbridge/pkg/registry"
	"clawbridge/pkg/transport"
)

func gatewayCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	eng, err := buildEngine(cfg)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		fmt.Printf("Error creating transport: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	disp := dispatch.New(ctx, eng, tr, cfg.Engine.Model)
	gatekeeper := bridge.New(tr, disp.Dispatch, bridge.Options{
		Owner: transport.OwnerIdentity{
			PrimaryID: cfg.Bridge.OwnerJID,
			LinkedID:  cfg.Bridge.OwnerLID,
		},
		Enabled: cfg.Bridge.Enabled,
	})
	disp.Bind(gatekeeper)

	reg := registry.New()
	reg.Set(tr, gatekeeper)

	wirePersistence(cfg, tr, gatekeeper)

	tr.SubscribePairing(func(code string) {
		fmt.Println("Scan this code with the channel app to pair:")
		fmt.Println(code)
	})

	if err := tr.Connect(ctx); err != nil {
		fmt.Printf("Error connecting transport: %v\n", err)
		reg.Dispose()
		os.Exit(1)
	}

	logger.InfoCF("gateway", "Bridge running", map[string]interface{}{
		"transport": cfg.Transport.Kind,
		"engine":    cfg.Engine.Kind,
		"enabled":   cfg.Bridge.Enabled,
	})

	<-ctx.Done()

	logger.InfoC("gateway", "Shutting down")
	reg.Dispose()
}

// wirePersistence writes status- and identity-bearing transport events
// back to the config file, so a restart restores the owner identity
// without waiting for the network. Transports emit from their own
// goroutines, so all config mutation and saving happens under one lock.
func wirePersistence(cfg *config.Config, tr transport.Transport, gatekeeper *bridge.Bridge) {
	var mu sync.Mutex

	tr.SubscribeStatus(func(s transport.Status) {
		mu.Lock()
		defer mu.Unlock()
		cfg.Bridge.Status = string(s)
		if s == transport.StatusConnected {
			cfg.Bridge.LastConnectedAt = time.Now().UnixMilli()
		}
		if err := cfg.Save(); err != nil {
			logger.WarnCF("gateway", "Failed to persist status", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})

	tr.SubscribeOwnerIdentity(func(id transport.OwnerIdentity) {
		gatekeeper.SetOwnerIdentity(id.PrimaryID, id.LinkedID)
		mu.Lock()
		defer mu.Unlock()
		cfg.Bridge.OwnerJID = id.PrimaryID
		cfg.Bridge.OwnerLID = id.LinkedID
		if err := cfg.Save(); err != nil {
			logger.WarnCF("gateway", "Failed to persist owner identity", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})
}

func buildEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Kind {
	case "claude-cli", "":
		return claudecli.New(cfg.Engine.Workspace), nil
	case "anthropic":
		if cfg.Engine.APIKey == "" {
			return nil, fmt.Errorf("anthropic engine requires an API key")
		}
		return anthropicengine.New(cfg.Engine.APIKey, cfg.Engine.Model), nil
	case "openai":
		if cfg.Engine.APIKey == "" {
			return nil, fmt.Errorf("openai engine requires an API key")
		}
		return openaiengine.New(cfg.Engine.APIKey, cfg.Engine.Model), nil
	default:
		return nil, fmt.Errorf("unknown engine kind: %s", cfg.Engine.Kind)
	}
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "whatsapp", "":
		purger := config.SessionCredentials{Path: cfg.Transport.WhatsApp.SessionPath}
		return transport.NewWhatsAppTransport(cfg.Transport.WhatsApp, purger), nil
	case "telegram":
		return transport.NewTelegramTransport(cfg.Transport.Telegram)
	case "discord":
		return transport.NewDiscordTransport(cfg.Transport.Discord)
	case "slack":
		return transport.NewSlackTransport(cfg.Transport.Slack)
	default:
		return nil, fmt.Errorf("unknown transport kind: %s", cfg.Transport.Kind)
	}
}
