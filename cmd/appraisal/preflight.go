package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"appraisal/pkg/agent"
	"appraisal/pkg/agent/llm"
	"appraisal/pkg/config"
	"appraisal/pkg/shops"
)

// preflightTimeout bounds each connectivity probe.
const preflightTimeout = 30 * time.Second

func ok(format string, args ...any)   { fmt.Printf("  [OK] "+format+"\n", args...) }
func warn(format string, args ...any) { fmt.Printf("  [WARN] "+format+"\n", args...) }
func fail(format string, args ...any) { fmt.Printf("  [FAIL] "+format+"\n", args...) }

// runPreflight validates credentials and probes each provider with a tiny
// request. Returns a process exit code.
func runPreflight(settings *config.Settings) int {
	failures := 0

	fmt.Println("\n--- Credentials ---")
	failures += checkCredentials(settings)

	factory := agent.NewLLMClientFactory(settings)

	fmt.Println("\n--- Vision provider ---")
	if !probeCompletion(factory, agent.RoleVision, "Respond with exactly: CONNECTION_OK", "CONNECTION_OK") {
		failures++
	}

	fmt.Println("\n--- Swarm provider ---")
	if !probeCompletion(factory, agent.RoleSwarm, "What is 2+2? Reply with just the number.", "4") {
		failures++
	}

	fmt.Println("\n--- Shop search ---")
	if !probeShopSearch(settings) {
		failures++
	}

	if failures > 0 {
		fmt.Printf("\nPreflight finished with %d failure(s)\n", failures)
		return 1
	}
	fmt.Println("\nPreflight passed")
	return 0
}

// checkCredentials reports on key presence and well-known key prefixes.
func checkCredentials(settings *config.Settings) int {
	failures := 0

	switch {
	case settings.AnthropicAPIKey == "":
		if settings.UseOllama {
			warn("%s not set (offline mode)", config.SecretAnthropicKey)
		} else {
			fail("%s not set", config.SecretAnthropicKey)
			failures++
		}
	case strings.HasPrefix(settings.AnthropicAPIKey, "sk-ant-"):
		ok("%s set (%s...)", config.SecretAnthropicKey, settings.AnthropicAPIKey[:12])
	default:
		warn("%s set but doesn't start with sk-ant-, may be invalid", config.SecretAnthropicKey)
	}

	switch {
	case settings.NVIDIAAPIKey == "":
		if settings.UseOllama {
			warn("%s not set (offline mode)", config.SecretNVIDIAKey)
		} else {
			fail("%s not set", config.SecretNVIDIAKey)
			failures++
		}
	case strings.HasPrefix(settings.NVIDIAAPIKey, "nvapi-"):
		ok("%s set (%s...)", config.SecretNVIDIAKey, settings.NVIDIAAPIKey[:10])
	default:
		warn("%s set but doesn't start with nvapi-, may be invalid", config.SecretNVIDIAKey)
	}

	if settings.SearchAPIKey == "" {
		fail("%s not set, needed for shop search", config.SecretSearchAPIKey)
		failures++
	} else {
		ok("%s set", config.SecretSearchAPIKey)
	}

	if settings.ElevenLabsAPIKey == "" || settings.ElevenLabsAgent == "" {
		warn("ElevenLabs credentials incomplete, negotiation calls will use the simulated dialer")
	} else {
		ok("ElevenLabs credentials set")
	}

	return failures
}

func probeCompletion(factory *agent.LLMClientFactory, role agent.Role, prompt, expect string) bool {
	client, err := factory.CreateClient(role)
	if err != nil {
		fail("Client setup: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), preflightTimeout)
	defer cancel()

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   100,
		Temperature: llm.TemperatureDefault,
	})
	if err != nil {
		fail("%s: %v", client.GetModelName(), err)
		return false
	}

	if strings.Contains(resp.Content, expect) || strings.Contains(resp.Reasoning, expect) {
		ok("%s connected", client.GetModelName())
	} else {
		warn("%s responded but with unexpected output: %.80s", client.GetModelName(), resp.Content)
	}
	return true
}

func probeShopSearch(settings *config.Settings) bool {
	finder := shops.NewClient(settings.SearchAPIKey, settings.SearchAPIBase, settings.RadiusMiles)

	ctx, cancel := context.WithTimeout(context.Background(), preflightTimeout)
	defer cancel()

	listings, err := finder.Find(ctx, "pawn shop near New York", config.DefaultCoordinates)
	if err != nil {
		fail("SearchAPI: %v", err)
		return false
	}
	if len(listings) == 0 {
		warn("SearchAPI connected but returned no results")
		return true
	}
	first := listings[0]
	phone := first.Phone
	if phone == "" {
		phone = "no phone"
	}
	ok("SearchAPI connected (%s, %s)", first.Name, phone)
	return true
}
