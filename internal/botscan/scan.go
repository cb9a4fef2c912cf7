package botscan

import (
	"context"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"brandwatch/internal/botsig"
	"brandwatch/internal/iox"
)

// BotStat is one crawler's footprint in the scanned log.
type BotStat struct {
	Name     string `json:"name"`
	Hits     int    `json:"hits"`
	LastSeen string `json:"last_seen,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// Scanner classifies access-log lines against a signature table. The log is
// walked newest-to-oldest (append-ordered files), so the first sighting
// recorded per bot is its most recent one.
type Scanner struct {
	Path     string
	Table    *botsig.Table
	MaxLines int // 0 = unlimited

	// VerifyWorkers > 0 enables reverse-DNS verification of sampled
	// source IPs per matched bot.
	VerifyWorkers int
	VerifyTimeout time.Duration
}

// ipSamplesPerBot bounds how many distinct source IPs are kept per bot for
// the verify step.
const ipSamplesPerBot = 5

// Scan reads the log and aggregates per-bot hit counts. Read and decompress
// failures degrade to an empty result; they are never fatal.
func (s *Scanner) Scan(ctx context.Context) []BotStat {
	if s.Path == "" {
		return nil
	}
	table := s.Table
	if table == nil {
		table = botsig.Default()
	}

	in, err := iox.OpenAuto(s.Path)
	if err != nil {
		log.Printf("botscan: open %s: %v", s.Path, err)
		return nil
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		log.Printf("botscan: read %s: %v", s.Path, err)
		return nil
	}
	lines := strings.Split(string(data), "\n")

	hits := make(map[string]int)
	lastSeen := make(map[string]string)
	ips := make(map[string]map[string]struct{})

	scanned := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if s.MaxLines > 0 && scanned >= s.MaxLines {
			break
		}
		if scanned%4096 == 0 && ctx.Err() != nil {
			log.Printf("botscan: deadline hit after %d lines, keeping partial counts", scanned)
			break
		}
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		scanned++

		ua := lastQuoted(line)
		if ua == "" || ua == "-" {
			continue
		}
		name, ok := table.Match(ua)
		if !ok {
			continue
		}
		hits[name]++
		// First sighting during the reverse walk = most recent. The raw
		// bracketed timestamp is kept verbatim; deployments disagree on
		// its format.
		if _, seen := lastSeen[name]; !seen {
			lastSeen[name] = bracketed(line)
		}
		if ip := firstField(line); ip != "" && ip != "-" {
			set := ips[name]
			if set == nil {
				set = make(map[string]struct{}, ipSamplesPerBot)
				ips[name] = set
			}
			if len(set) < ipSamplesPerBot {
				set[ip] = struct{}{}
			}
		}
	}

	stats := make([]BotStat, 0, len(hits))
	for name, n := range hits {
		stats = append(stats, BotStat{Name: name, Hits: n, LastSeen: lastSeen[name]})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Hits != stats[j].Hits {
			return stats[i].Hits > stats[j].Hits
		}
		return stats[i].Name < stats[j].Name
	})

	if s.VerifyWorkers > 0 && len(stats) > 0 {
		s.verify(ctx, stats, ips)
	}
	return stats
}

// lastQuoted returns the content of the last double-quoted segment. The
// combined log format puts the user-agent there.
func lastQuoted(line string) string {
	end := strings.LastIndexByte(line, '"')
	if end <= 0 {
		return ""
	}
	start := strings.LastIndexByte(line[:end], '"')
	if start < 0 {
		return ""
	}
	return line[start+1 : end]
}

// bracketed returns the raw text of the first [...] segment, usually the
// request timestamp.
func bracketed(line string) string {
	start := strings.IndexByte(line, '[')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(line[start:], ']')
	if end < 0 {
		return ""
	}
	return line[start+1 : start+end]
}

// firstField returns the first whitespace-delimited token (client address).
func firstField(line string) string {
	if i := strings.IndexByte(line, ' '); i > 0 {
		return line[:i]
	}
	return line
}
