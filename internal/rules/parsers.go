package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const stripPrefix = "strip:"

// DefaultParsers returns the strip, sed-style and literal parsers, in the
// order they are tried.
func DefaultParsers() []RuleParser {
	return []RuleParser{stripRuleParser{}, regexRuleParser{}, literalRuleParser{}}
}

// stripRuleParser handles "strip: hey scope" lines. The phrase is removed
// when it opens the utterance, along with trailing punctuation.
type stripRuleParser struct{}

func (stripRuleParser) CanParse(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), stripPrefix)
}

func (stripRuleParser) Parse(line string) (Rule, error) {
	return parseStripRule(line)
}

type stripRule struct {
	re *regexp.Regexp
}

func parseStripRule(line string) (Rule, error) {
	phrase := strings.TrimSpace(line[len(stripPrefix):])
	if phrase == "" {
		return nil, errors.New("strip rule phrase cannot be empty")
	}
	words := strings.Fields(phrase)
	for i, word := range words {
		words[i] = regexp.QuoteMeta(word)
	}
	pattern := `(?i)^\s*` + strings.Join(words, `[\s,]+`)
	if isWordByte(phrase[len(phrase)-1]) {
		pattern += `\b`
	}
	pattern += `[\s,.!?:;]*`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid strip phrase: %w", err)
	}
	return stripRule{re: re}, nil
}

func (r stripRule) Apply(input string) (string, bool) {
	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}
	return input[loc[1]:], true
}

// literalRuleParser handles "from => to" lines. Matching is case-insensitive
// and respects word boundaries.
type literalRuleParser struct{}

func (literalRuleParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalRuleParser) Parse(line string) (Rule, error) {
	return parseLiteralRule(line)
}

type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseLiteralRule(line string) (Rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(from[len(from)-1]) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{re: re, replacement: to}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// regexRuleParser handles sed-style "s/pattern/replacement/flags" lines.
// Patterns are case-insensitive unless overridden inside the pattern.
type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return len(line) > 2 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

func (regexRuleParser) Parse(line string) (Rule, error) {
	return parseRegexRule(line)
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (Rule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isWordByte(delim) || delim == ' ' || delim == '\t' {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, next, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, next, err := readDelimited(line, next, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[next:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	match := r.re.FindStringSubmatchIndex(input)
	if match == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, match)
	output := input[:match[0]] + string(expanded) + input[match[1]:]
	return output, output != input
}

// readDelimited reads up to the next unescaped delim and returns the text
// and the index just past the delimiter.
func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}
