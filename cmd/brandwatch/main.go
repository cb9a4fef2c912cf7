package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"brandwatch/internal/alerts"
	"brandwatch/internal/botscan"
	"brandwatch/internal/botsig"
	"brandwatch/internal/config"
	"brandwatch/internal/gsc"
	"brandwatch/internal/snapshot"
)

var version = "v1.0"

func main() {
	outDir := flag.String("out", "", "Output directory (overrides OUTPUT_DIR)")
	logPath := flag.String("log", "", "Access log path (overrides ACCESS_LOG_PATH)")
	botsPath := flag.String("bots", "", "Bot rules file (.json or .yaml)")
	verifyWorkers := flag.Int("verify-workers", 0, "Reverse-DNS verification workers for bot IPs (0 = off)")
	showPlan := flag.Bool("plan", false, "Show plan and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *logPath != "" {
		cfg.AccessLogPath = *logPath
	}
	outPath := filepath.Join(cfg.OutputDir, "snapshot.json")

	if *showPlan {
		fmt.Printf("==== Brandwatch %s Execution Plan ====\n", version)
		fmt.Printf("Brand terms        : %s\n", strings.Join(cfg.BrandTerms, ", "))
		fmt.Printf("Alert feeds        : %d\n", len(cfg.AlertFeeds))
		fmt.Printf("GSC configured     : %v\n", gscCreds(cfg).Configured())
		fmt.Printf("Access log         : %s\n", cfg.AccessLogPath)
		fmt.Printf("Bots rules         : %s\n", *botsPath)
		fmt.Printf("Extra bot tokens   : %d\n", len(cfg.ExtraBots))
		fmt.Printf("Verify workers     : %d\n", *verifyWorkers)
		fmt.Printf("Output             : %s\n", outPath)
		fmt.Printf("Fetch timeout      : %s\n", cfg.FetchTimeout)
		fmt.Printf("Run timeout        : %s\n", cfg.RunTimeout)
		return
	}

	start := time.Now()
	defer func() {
		log.Printf("⏱️ completed in %v", time.Since(start))
	}()

	table, err := botsig.LoadFile(*botsPath)
	if err != nil {
		log.Printf("warning: bot rules load failed: %v (using defaults)", err)
		table = botsig.Default()
	}
	table = table.WithExtra(cfg.ExtraBots)

	asm := &snapshot.Assembler{
		BrandTerms: cfg.BrandTerms,
		AlertFeeds: cfg.AlertFeeds,
		RunTimeout: cfg.RunTimeout,
		Alerts:     alerts.NewFetcher(cfg.FetchTimeout),
		Metrics:    gsc.NewClient(gscCreds(cfg), cfg.FetchTimeout),
		Bots: &botscan.Scanner{
			Path:          cfg.AccessLogPath,
			Table:         table,
			MaxLines:      cfg.MaxLogLines,
			VerifyWorkers: *verifyWorkers,
		},
	}

	snap := asm.Run(context.Background())
	log.Printf("assembled: alerts=%d bots=%d", len(snap.Alerts), len(snap.Bots))

	if err := snapshot.Write(snap, outPath); err != nil {
		log.Fatalf("write snapshot: %v", err)
	}
	log.Printf("✅ snapshot written to %s", outPath)
}

func gscCreds(cfg *config.Config) gsc.Credentials {
	return gsc.Credentials{
		ClientID:     cfg.GSCClientID,
		ClientSecret: cfg.GSCClientSecret,
		RefreshToken: cfg.GSCRefreshToken,
		SiteURL:      cfg.GSCSiteURL,
	}
}
