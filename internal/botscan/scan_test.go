package botscan

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"brandwatch/internal/botsig"
)

// Combined log format: client, identd, user, [time], "request", status, size,
// "referrer", "user-agent".
const sampleLog = `203.0.113.7 - - [10/Aug/2026:06:25:01 +0000] "GET / HTTP/1.1" 200 512 "-" "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0"
66.249.66.1 - - [10/Aug/2026:06:25:14 +0000] "GET /robots.txt HTTP/1.1" 200 64 "-" "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
20.171.206.2 - - [10/Aug/2026:06:26:03 +0000] "GET /pricing HTTP/1.1" 200 2048 "-" "Mozilla/5.0 AppleWebKit/537.36 (compatible; GPTBot/1.0; +https://openai.com/gptbot)"
198.51.100.9 - - [10/Aug/2026:06:27:40 +0000] "GET /about HTTP/1.1" 200 1024 "-" "-"
20.171.206.3 - - [10/Aug/2026:06:28:55 +0000] "GET /blog HTTP/1.1" 200 4096 "-" "Mozilla/5.0 AppleWebKit/537.36 (compatible; GPTBot/1.0; +https://openai.com/gptbot)"
`

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if strings.HasSuffix(name, ".gz") {
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		gw := gzip.NewWriter(f)
		if _, err := gw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		if err := gw.Close(); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
		return path
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func statsByName(stats []BotStat) map[string]BotStat {
	out := make(map[string]BotStat, len(stats))
	for _, s := range stats {
		out[s.Name] = s
	}
	return out
}

func TestScanCounts(t *testing.T) {
	s := &Scanner{Path: writeLog(t, "access.log", sampleLog)}
	stats := s.Scan(context.Background())

	if len(stats) != 2 {
		t.Fatalf("got %d bots, want 2: %+v", len(stats), stats)
	}
	// Sorted hits desc.
	if stats[0].Name != "GPTBot" || stats[0].Hits != 2 {
		t.Errorf("stats[0] = %+v, want GPTBot hits=2", stats[0])
	}
	if stats[1].Name != "Googlebot" || stats[1].Hits != 1 {
		t.Errorf("stats[1] = %+v, want Googlebot hits=1", stats[1])
	}
	// Reverse scan: last_seen is the newest sighting's raw bracketed time.
	if stats[0].LastSeen != "10/Aug/2026:06:28:55 +0000" {
		t.Errorf("GPTBot last_seen = %q", stats[0].LastSeen)
	}
	if stats[1].LastSeen != "10/Aug/2026:06:25:14 +0000" {
		t.Errorf("Googlebot last_seen = %q", stats[1].LastSeen)
	}
}

func TestScanGzip(t *testing.T) {
	s := &Scanner{Path: writeLog(t, "access.log.gz", sampleLog)}
	stats := s.Scan(context.Background())
	m := statsByName(stats)
	if m["GPTBot"].Hits != 2 || m["Googlebot"].Hits != 1 {
		t.Errorf("gzip scan mismatch: %+v", stats)
	}
}

func TestScanDirectionIndependentCounts(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(sampleLog), "\n")
	reversed := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		reversed = append(reversed, lines[i])
	}

	fwd := (&Scanner{Path: writeLog(t, "fwd.log", sampleLog)}).Scan(context.Background())
	rev := (&Scanner{Path: writeLog(t, "rev.log", strings.Join(reversed, "\n") + "\n")}).Scan(context.Background())

	fm, rm := statsByName(fwd), statsByName(rev)
	if len(fm) != len(rm) {
		t.Fatalf("bot sets differ: %v vs %v", fwd, rev)
	}
	for name, fs := range fm {
		if rm[name].Hits != fs.Hits {
			t.Errorf("%s: hits %d vs %d", name, fs.Hits, rm[name].Hits)
		}
	}
}

func TestScanMaxLines(t *testing.T) {
	// Only the newest two lines are examined: one GPTBot, one "-" UA.
	s := &Scanner{Path: writeLog(t, "access.log", sampleLog), MaxLines: 2}
	stats := s.Scan(context.Background())
	if len(stats) != 1 || stats[0].Name != "GPTBot" || stats[0].Hits != 1 {
		t.Errorf("got %+v, want only GPTBot hits=1", stats)
	}
}

func TestScanFirstMatchAttribution(t *testing.T) {
	table, err := botsig.Compile([]botsig.Rule{
		{Name: "Alpha", Regex: "spider"},
		{Name: "Beta", Regex: "megaspider"},
	})
	if err != nil {
		t.Fatal(err)
	}
	line := `192.0.2.1 - - [10/Aug/2026:07:00:00 +0000] "GET / HTTP/1.1" 200 1 "-" "MegaSpider/1.0"` + "\n"
	s := &Scanner{Path: writeLog(t, "one.log", line), Table: table}
	stats := s.Scan(context.Background())
	if len(stats) != 1 || stats[0].Name != "Alpha" {
		t.Errorf("got %+v, want single Alpha attribution", stats)
	}
}

func TestScanDegradations(t *testing.T) {
	t.Run("no path", func(t *testing.T) {
		if stats := (&Scanner{}).Scan(context.Background()); stats != nil {
			t.Errorf("got %+v, want nil", stats)
		}
	})
	t.Run("missing file", func(t *testing.T) {
		s := &Scanner{Path: filepath.Join(t.TempDir(), "nope.log")}
		if stats := s.Scan(context.Background()); len(stats) != 0 {
			t.Errorf("got %+v, want empty", stats)
		}
	})
	t.Run("corrupt gzip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.log.gz")
		if err := os.WriteFile(path, []byte("not gzip"), 0o644); err != nil {
			t.Fatal(err)
		}
		s := &Scanner{Path: path}
		if stats := s.Scan(context.Background()); len(stats) != 0 {
			t.Errorf("got %+v, want empty", stats)
		}
	})
}

func TestFieldExtraction(t *testing.T) {
	line := `1.2.3.4 - - [10/Aug/2026:06:25:14 +0000] "GET / HTTP/1.1" 200 64 "https://ref.example" "SomeBot/1.0"`

	if got := lastQuoted(line); got != "SomeBot/1.0" {
		t.Errorf("lastQuoted = %q", got)
	}
	if got := bracketed(line); got != "10/Aug/2026:06:25:14 +0000" {
		t.Errorf("bracketed = %q", got)
	}
	if got := firstField(line); got != "1.2.3.4" {
		t.Errorf("firstField = %q", got)
	}

	if got := lastQuoted("no quotes here"); got != "" {
		t.Errorf("lastQuoted without quotes = %q", got)
	}
	if got := bracketed("no brackets"); got != "" {
		t.Errorf("bracketed without brackets = %q", got)
	}
	if got := firstField("single-token"); got != "single-token" {
		t.Errorf("firstField single token = %q", got)
	}
}

func TestStripNumericPrefix(t *testing.T) {
	cases := map[string]string{
		"66-249-66-1.googlebot.com.":         "googlebot.com",
		"crawl-66-249-75-166.googlebot.com":  "googlebot.com",
		"rate-limited-proxy.google.com":      "rate-limited-proxy.google.com",
		"":                                   "",
		"17.241.75.9.in-addr.arpa":           "in-addr.arpa",
	}
	for in, want := range cases {
		if got := stripNumericPrefix(in); got != want {
			t.Errorf("stripNumericPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPtrsKnown(t *testing.T) {
	table := botsig.Default()
	if !ptrsKnown(table, []string{"crawl-66-249-75-166.googlebot.com."}) {
		t.Error("googlebot PTR not recognized")
	}
	if ptrsKnown(table, []string{"ec2-3-94-12-1.compute-1.amazonaws.com."}) {
		t.Error("generic cloud PTR recognized as bot")
	}
	if ptrsKnown(table, nil) {
		t.Error("empty PTR set recognized")
	}
}
