package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"brandwatch/internal/alerts"
	"brandwatch/internal/botscan"
	"brandwatch/internal/gsc"
	"brandwatch/internal/iox"
)

// Snapshot is the one artifact a run produces. Field names are the dashboard
// contract and must stay stable.
type Snapshot struct {
	GeneratedAt string            `json:"generated_at"`
	BrandTerms  []string          `json:"brand_terms"`
	Alerts      []alerts.Item     `json:"alerts"`
	GSC         any               `json:"gsc"`
	Bots        []botscan.BotStat `json:"bots"`
}

type AlertSource interface {
	Fetch(ctx context.Context, urls []string) []alerts.Item
}

type MetricsSource interface {
	Configured() bool
	Fetch(ctx context.Context, brandTerms []string) (*gsc.Report, error)
}

type BotSource interface {
	Scan(ctx context.Context) []botscan.BotStat
}

// Assembler fans out to the three sources and joins their results. The
// sources are independent; each swallows its own failures, so the join never
// needs cancellation propagation between them.
type Assembler struct {
	BrandTerms []string
	AlertFeeds []string
	RunTimeout time.Duration

	Alerts  AlertSource
	Metrics MetricsSource
	Bots    BotSource
}

const (
	noteNotConfigured = "not configured"
	noteUnavailable   = "unavailable"
)

// gscFallback is the gsc section used when no report is available.
type gscFallback struct {
	Summary    fallbackSummary `json:"summary"`
	TopQueries []gsc.QueryRow  `json:"topQueries"`
	TopPages   []gsc.PageRow   `json:"topPages"`
}

type fallbackSummary struct {
	Note string `json:"note"`
}

func placeholder(note string) gscFallback {
	return gscFallback{
		Summary:    fallbackSummary{Note: note},
		TopQueries: []gsc.QueryRow{},
		TopPages:   []gsc.PageRow{},
	}
}

// Run executes the three fetches concurrently and assembles the snapshot.
// When the overall deadline fires, whatever completed still goes in.
func (a *Assembler) Run(ctx context.Context) *Snapshot {
	if a.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.RunTimeout)
		defer cancel()
	}

	var (
		wg       sync.WaitGroup
		alertsL  []alerts.Item
		report   *gsc.Report
		gscErr   error
		botStats []botscan.BotStat
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if a.Alerts != nil {
			alertsL = a.Alerts.Fetch(ctx, a.AlertFeeds)
		}
	}()
	go func() {
		defer wg.Done()
		if a.Metrics != nil && a.Metrics.Configured() {
			report, gscErr = a.Metrics.Fetch(ctx, a.BrandTerms)
		}
	}()
	go func() {
		defer wg.Done()
		if a.Bots != nil {
			botStats = a.Bots.Scan(ctx)
		}
	}()
	wg.Wait()

	snap := &Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		BrandTerms:  a.BrandTerms,
		Alerts:      alertsL,
		Bots:        botStats,
	}
	// The dashboard expects arrays, not null.
	if snap.BrandTerms == nil {
		snap.BrandTerms = []string{}
	}
	if snap.Alerts == nil {
		snap.Alerts = []alerts.Item{}
	}
	if snap.Bots == nil {
		snap.Bots = []botscan.BotStat{}
	}

	switch {
	case a.Metrics == nil || !a.Metrics.Configured():
		snap.GSC = placeholder(noteNotConfigured)
	case gscErr != nil || report == nil:
		if gscErr != nil {
			log.Printf("gsc: %v (snapshot continues without search metrics)", gscErr)
		}
		snap.GSC = placeholder(noteUnavailable)
	default:
		snap.GSC = report
	}
	return snap
}

// Write marshals the snapshot and overwrites path. This is the only step of
// a run allowed to fail the process. The overwrite is direct; a concurrent
// reader can observe a torn file.
func Write(snap *Snapshot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	data, err := sonic.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	out, err := iox.CreateAuto(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return out.Close()
}
