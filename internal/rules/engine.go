package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultPassLimit = 30

// Rule rewrites an utterance and reports whether anything changed.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser turns one rule line into a Rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (Rule, error)
}

// Options describes where utterance rules come from.
type Options struct {
	// Path is a rules file; a missing file means no file rules.
	Path string
	// Inline holds extra rule lines, applied after the file rules.
	Inline []string
	// WakePhrases are stripped from the start of every utterance.
	WakePhrases []string
	// PassLimit bounds how many passes Apply makes before giving up on a
	// fixed point.
	PassLimit int
	Parsers   []RuleParser
}

// Engine normalizes spoken utterances before they are submitted as queries.
type Engine struct {
	rules     []Rule
	passLimit int
}

// NewEngine loads rules from a file using the built-in parsers.
func NewEngine(path string, passLimit int) (*Engine, error) {
	return Load(Options{Path: path, PassLimit: passLimit})
}

// Load compiles rules from every source in opts.
func Load(opts Options) (*Engine, error) {
	if opts.PassLimit <= 0 {
		opts.PassLimit = defaultPassLimit
	}
	parsers := opts.Parsers
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	var compiled []Rule
	for _, phrase := range opts.WakePhrases {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		rule, err := parseStripRule(stripPrefix + phrase)
		if err != nil {
			return nil, fmt.Errorf("invalid wake phrase %q: %w", phrase, err)
		}
		compiled = append(compiled, rule)
	}

	if path := strings.TrimSpace(opts.Path); path != "" {
		contents, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		default:
			fileRules, err := parseRules(strings.Split(string(contents), "\n"), parsers)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
			}
			compiled = append(compiled, fileRules...)
		}
	}

	inlineRules, err := parseRules(opts.Inline, parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inline rules: %w", err)
	}
	compiled = append(compiled, inlineRules...)

	return &Engine{rules: compiled, passLimit: opts.PassLimit}, nil
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply rewrites text until no rule changes it, then collapses whitespace.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for pass := 0; pass < e.passLimit && len(e.rules) > 0; pass++ {
		changed := false
		for _, rule := range e.rules {
			if next, ruleChanged := rule.Apply(result); ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.Join(strings.Fields(result), " "), nil
}

func parseRules(lines []string, parsers []RuleParser) ([]Rule, error) {
	compiled := make([]Rule, 0, len(lines))
	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

func parseLine(line string, parsers []RuleParser) (Rule, error) {
	for _, parser := range parsers {
		if parser.CanParse(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}
