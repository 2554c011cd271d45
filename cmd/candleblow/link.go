package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dooshek/candleblow/internal/clipboard"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/permalink"
	"github.com/dooshek/candleblow/internal/types"
)

// copyLink is swapped out in tests
var copyLink = clipboard.Copy

// runLink implements `candleblow link`: create a shareable cake link, or
// check one that was received.
func runLink(args []string, cfg *types.Config, out io.Writer, now time.Time) error {
	linkCmd := flag.NewFlagSet("link", flag.ContinueOnError)
	linkCmd.SetOutput(out)

	name := linkCmd.String("name", "", "Name of the birthday person")
	message := linkCmd.String("message", "", "Optional custom birthday message")
	ttl := linkCmd.Duration("ttl", 0, "How long the link stays valid (default from config, 24h)")
	copyToClipboard := linkCmd.Bool("copy", false, "Copy the generated link to the clipboard")
	check := linkCmd.String("check", "", "Check a received link instead of creating one")

	if err := linkCmd.Parse(args); err != nil {
		return err
	}

	if *check != "" {
		return checkLink(*check, out, now)
	}

	if *name == "" {
		fmt.Fprintln(out, "Link commands:")
		fmt.Fprintln(out, "  candleblow link --name <name> [--message <text>] [--ttl 24h] [--copy]")
		fmt.Fprintln(out, "  candleblow link --check <url>")
		return fmt.Errorf("--name is required")
	}

	linkCfg := cfg.GetLinkConfig()
	if *ttl > 0 {
		linkCfg.TTL = *ttl
	}

	url, data, err := permalink.Generate(linkCfg.BaseURL, *name, *message, linkCfg.TTL, now)
	if err != nil {
		return fmt.Errorf("failed to generate link: %w", err)
	}

	fmt.Fprintln(out, url)
	fmt.Fprintf(out, "🎂 Cake for %s, %s\n", data.Name, permalink.FormatTimeRemaining(data.TimeRemaining(now)))

	if *copyToClipboard {
		if err := copyLink(url); err != nil {
			logger.Error("Failed to copy link", err)
			return err
		}
		fmt.Fprintln(out, "📋 Link copied to clipboard")
	}
	return nil
}

func checkLink(rawURL string, out io.Writer, now time.Time) error {
	data, err := permalink.Parse(rawURL)
	if err != nil {
		return err
	}
	if err := data.Validate(now); err != nil {
		fmt.Fprintf(out, "⌛ The cake for %s has expired\n", data.Name)
		return err
	}

	fmt.Fprintf(out, "🎂 Cake for %s, %s\n", data.Name, permalink.FormatTimeRemaining(data.TimeRemaining(now)))
	if data.Message != "" {
		fmt.Fprintf(out, "💌 %s\n", data.Message)
	}
	return nil
}
