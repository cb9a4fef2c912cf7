package botscan

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"brandwatch/internal/botsig"
)

// verify does parallel reverse-DNS lookups of each bot's sampled source IPs
// and marks a bot verified when some PTR record matches a known signature.
// Lookup failures only leave verified=false.
func (s *Scanner) verify(ctx context.Context, stats []BotStat, ips map[string]map[string]struct{}) {
	timeout := s.VerifyTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	table := s.Table
	if table == nil {
		table = botsig.Default()
	}

	// Many bots can share infrastructure; resolve each IP once.
	unique := make(map[string]struct{})
	for _, set := range ips {
		for ip := range set {
			unique[ip] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return
	}

	jobs := make(chan string, len(unique))
	type result struct {
		ip string
		ok bool
	}
	results := make(chan result, len(unique))

	var wg sync.WaitGroup
	for w := 0; w < s.VerifyWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				rCtx, cancel := context.WithTimeout(ctx, timeout)
				ptrs, _ := net.DefaultResolver.LookupAddr(rCtx, ip)
				cancel()
				results <- result{ip: ip, ok: ptrsKnown(table, ptrs)}
			}
		}()
	}

	for ip := range unique {
		jobs <- ip
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	verifiedIPs := make(map[string]bool, len(unique))
	for r := range results {
		verifiedIPs[r.ip] = r.ok
	}

	for i := range stats {
		for ip := range ips[stats[i].Name] {
			if verifiedIPs[ip] {
				stats[i].Verified = true
				break
			}
		}
	}
}

// ptrsKnown reports whether any PTR hostname, with numeric prefixes stripped,
// matches the signature table.
func ptrsKnown(table *botsig.Table, ptrs []string) bool {
	for _, p := range ptrs {
		host := stripNumericPrefix(p)
		if host == "" {
			continue
		}
		if _, ok := table.Match(host); ok {
			return true
		}
	}
	return false
}

// stripNumericPrefix drops leading hostname labels containing digits:
// "crawl-66-249-75-166.googlebot.com" -> "googlebot.com".
func stripNumericPrefix(host string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(host, ".")))
	if h == "" {
		return h
	}
	labels := strings.Split(h, ".")
	i := 0
	for i < len(labels) {
		if strings.IndexFunc(labels[i], func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
			i++
			continue
		}
		break
	}
	if i >= len(labels) {
		return h
	}
	return strings.Join(labels[i:], ".")
}
