package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/raine/appraisal-lots/internal/config"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
)

// vision-poc sends the lot prompt for one grouping mode to one or both
// providers and prints the parsed lots side by side with token usage.
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <mode> <image>... [--provider gemini|claude|both]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY    - Required for Gemini\n")
		fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY - Required for Claude\n")
		os.Exit(1)
	}
	config.LoadEnvFiles()

	mode, err := lot.ParseMode(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	provider := "both"
	var locators []string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		if args[i] == "--provider" && i+1 < len(args) {
			provider = args[i+1]
			i++
			continue
		}
		locators = append(locators, args[i])
	}

	ctx := context.Background()
	set := imageset.Resolve(locators)
	blobs, err := imageset.LoadAll(ctx, imageset.NewFetcher(), set.Images(), 4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load images: %v\n", err)
		os.Exit(1)
	}

	req := &llm.Request{Prompt: llm.LotPrompt(mode, len(blobs), "en", "USD")}
	for _, b := range blobs {
		req.Images = append(req.Images, llm.Image{Data: b.Data, MIMEType: b.MIMEType})
	}

	switch provider {
	case "gemini":
		run(ctx, llm.ProviderGemini, os.Getenv("GEMINI_API_KEY"), req)
	case "claude":
		run(ctx, llm.ProviderClaude, os.Getenv("ANTHROPIC_API_KEY"), req)
	case "both":
		run(ctx, llm.ProviderGemini, os.Getenv("GEMINI_API_KEY"), req)
		fmt.Println("\n" + strings.Repeat("-", 50) + "\n")
		run(ctx, llm.ProviderClaude, os.Getenv("ANTHROPIC_API_KEY"), req)
	default:
		fmt.Fprintf(os.Stderr, "Unknown provider: %s (use gemini, claude, or both)\n", provider)
		os.Exit(1)
	}
}

func run(ctx context.Context, provider llm.ProviderType, apiKey string, req *llm.Request) {
	fmt.Printf("=== %s ===\n", strings.ToUpper(string(provider)))

	client, err := llm.NewClient(ctx, llm.ProviderConfig{Provider: provider, APIKey: apiKey})
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		return
	}

	resp, err := client.Generate(ctx, req)
	if err != nil {
		fmt.Printf("Error analyzing images: %v\n", err)
		return
	}

	parsed, err := llm.ParseLots(resp.Text)
	if err != nil {
		fmt.Printf("Unparseable response: %v\n%s\n", err, resp.Text)
		return
	}

	fmt.Printf("Summary:     %s\n", parsed.Summary)
	for i, l := range parsed.Lots {
		fmt.Printf("\n[%d] %s\n", i+1, l.Title)
		fmt.Printf("    Description: %s\n", l.Description)
		fmt.Printf("    Images:      %v\n", l.ImageIndexes)
		if key := l.SerialKey(); key != "" {
			fmt.Printf("    Serial:      %s\n", key)
		}
		if l.EstimatedValue != nil {
			fmt.Printf("    Value:       %.2f\n", l.EstimatedValue.Float())
		}
	}
	if parsed.Rejected > 0 {
		fmt.Printf("\nRejected:    %d\n", parsed.Rejected)
	}
	fmt.Println()
	fmt.Printf("Model:       %s\n", resp.Model)
	fmt.Printf("Tokens:      %d in / %d out / %d total\n",
		resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.TotalTokens)
	fmt.Printf("Cost:        $%.6f\n", resp.Usage.CostUSD)
}
