package botsig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name  string `json:"name" yaml:"name"`
	Regex string `json:"regex" yaml:"regex"`
}

type compiled struct {
	name string
	re   *regexp.Regexp
}

// Table is an ordered list of bot signatures. Order matters: Match stops at
// the first rule that hits, so broad rules belong after specific ones.
type Table struct {
	rules []compiled
}

// Default returns the built-in signature set: AI crawlers first (the primary
// monitoring target), then search engines, social preview bots and SEO
// crawlers.
func Default() *Table {
	t, _ := Compile(defaultRules)
	return t
}

var defaultRules = []Rule{
	// AI crawlers
	{Name: "GPTBot", Regex: "gptbot"},
	{Name: "OAI-SearchBot", Regex: "oai-searchbot"},
	{Name: "ChatGPT-User", Regex: "chatgpt-user"},
	{Name: "PerplexityBot", Regex: "perplexity(bot|-user)"},
	{Name: "ClaudeBot", Regex: "claudebot|claude-(web|searchbot|user)"},
	{Name: "anthropic-ai", Regex: "ant(h)?ropic-ai"},
	{Name: "cohere-ai", Regex: "cohere-ai"},
	{Name: "Amazonbot", Regex: "amazonbot"},
	{Name: "Google-Extended", Regex: "google-extended"},
	{Name: "Google-CloudVertexBot", Regex: "google-cloudvertexbot"},
	{Name: "AI2Bot", Regex: "ai2bot"},
	{Name: "Bytespider", Regex: "bytespider"},
	{Name: "meta-externalagent", Regex: "meta-externalagent"},
	{Name: "CCBot", Regex: "ccbot"},
	// Search engines
	{Name: "Googlebot", Regex: "googlebot"},
	{Name: "Bingbot", Regex: "bingbot"},
	{Name: "DuckDuckBot", Regex: "duckduckbot"},
	{Name: "YandexBot", Regex: "yandex(bot)?"},
	{Name: "Baiduspider", Regex: "baiduspider"},
	{Name: "Applebot", Regex: "applebot"},
	// Social previews
	{Name: "FacebookBot", Regex: "facebookexternalhit|facebot"},
	{Name: "TwitterBot", Regex: "twitterbot|tweetmemebot"},
	{Name: "LinkedInBot", Regex: "linkedin(bot)?"},
	{Name: "Slackbot", Regex: "slack(bot)?"},
	{Name: "TelegramBot", Regex: "telegrambot"},
	{Name: "Discordbot", Regex: "discordbot"},
	{Name: "WhatsApp", Regex: "whatsapp"},
	{Name: "Pinterestbot", Regex: "pinterest(bot)?"},
	// SEO crawlers
	{Name: "AhrefsBot", Regex: "ahrefsbot"},
	{Name: "SemrushBot", Regex: "semrush(bot)?"},
	{Name: "MJ12bot", Regex: "mj12bot"},
	{Name: "DotBot", Regex: "dotbot"},
	{Name: "Rogerbot", Regex: "rogerbot"},
	{Name: "ScreamingFrog", Regex: "screaming frog"},
}

// Compile builds a Table, forcing case-insensitive matching on every rule.
func Compile(rules []Rule) (*Table, error) {
	cs := make([]compiled, 0, len(rules))
	for _, r := range rules {
		rx := r.Regex
		if rx == "" {
			continue
		}
		if !strings.HasPrefix(rx, "(?i)") {
			rx = "(?i)" + rx
		}
		re, err := regexp.Compile(rx)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", r.Name, err)
		}
		cs = append(cs, compiled{name: r.Name, re: re})
	}
	if len(cs) == 0 {
		return nil, errors.New("no valid regex rules compiled")
	}
	return &Table{rules: cs}, nil
}

// LoadFile reads a rule list from a JSON or YAML file. If path == "" the
// built-in set is returned.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rules); err != nil {
			return nil, err
		}
	case ".json":
		if err := sonic.Unmarshal(b, &rules); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported bots file format (use .json or .yaml/.yml)")
	}
	if len(rules) == 0 {
		return nil, errors.New("no rules found in bots file")
	}
	return Compile(rules)
}

// WithExtra appends operator-supplied tokens as literal rules, after the
// existing rules so built-in priority is preserved. Empty and duplicate
// tokens are ignored.
func (t *Table) WithExtra(tokens []string) *Table {
	if len(tokens) == 0 {
		return t
	}
	known := make(map[string]struct{}, len(t.rules))
	for _, c := range t.rules {
		known[strings.ToLower(c.name)] = struct{}{}
	}
	out := &Table{rules: append([]compiled(nil), t.rules...)}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, ok := known[strings.ToLower(tok)]; ok {
			continue
		}
		known[strings.ToLower(tok)] = struct{}{}
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(tok))
		out.rules = append(out.rules, compiled{name: tok, re: re})
	}
	return out
}

// Match returns the name of the first rule the user-agent hits. A UA maps to
// at most one bot name.
func (t *Table) Match(ua string) (string, bool) {
	if ua == "" {
		return "", false
	}
	for _, c := range t.rules {
		if c.re.MatchString(ua) {
			return c.name, true
		}
	}
	return "", false
}

// Len reports the number of compiled rules.
func (t *Table) Len() int { return len(t.rules) }
