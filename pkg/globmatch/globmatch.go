package globmatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// compiled caches patterns for Matches, which is called once per visited entry.
var compiled sync.Map // map[string]glob.Glob

// Matches reports whether candidate matches any of patterns. It operates on the full
// candidate string; callers decide whether to pass a basename, a segment or a path.
// A pattern that is not a valid glob is compared literally. No patterns means false.
//
// '*' matches any run of characters including '/', '?' exactly one character, and
// '[...]' or '[!...]' a class. Matching is case-sensitive on every platform.
func Matches(candidate string, patterns []string) bool {
	for _, p := range patterns {
		if matchOne(candidate, p) {
			return true
		}
	}
	return false
}

func matchOne(candidate, pattern string) bool {
	if !hasMeta(pattern) {
		return candidate == pattern
	}
	g, err := compile(pattern)
	if err != nil {
		return candidate == pattern
	}
	return g.Match(candidate)
}

func compile(pattern string) (glob.Glob, error) {
	if g, ok := compiled.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	// No separators: '*' crosses '/' as in fnmatch.
	g, err := glob.Compile(translate(pattern))
	if err != nil {
		return nil, err
	}
	compiled.Store(pattern, g)
	return g, nil
}

// Validate returns an error if pattern cannot be compiled.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	if !hasMeta(pattern) {
		return nil
	}
	if _, err := compile(pattern); err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return nil
}

// QuoteMeta escapes every wildcard character in s so it matches only itself.
func QuoteMeta(s string) string {
	return glob.QuoteMeta(s)
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, `*?[\`)
}

// translate converts fnmatch syntax into gobwas syntax. Braces are literal in fnmatch
// and "[!" negation is spelled the same in both, so only '{', '}' and ',' need escaping
// outside of character classes.
func translate(p string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\' && i+1 < len(p):
			b.WriteByte(c)
			i++
			b.WriteByte(p[i])
			continue
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '{' || c == '}' || c == ',':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

type matchType int

const (
	literalMatch matchType = iota
	prefixMatch
	suffixMatch
	globMatch
)

// pattern stores the pre-analyzed pattern details.
type pattern struct {
	raw       string // The original pattern for logging/debugging.
	clean     string // The pattern without wildcards for prefix/suffix matching.
	matchType matchType
	g         glob.Glob
	fullPath  bool // If true, the match is against the absolute path; otherwise the basename.
}

// Set is a compiled, categorized list of patterns.
//
// A pattern without '/' is matched against a basename or a single directory segment.
// A pattern containing '/' is matched against the whole absolute path (slash separated),
// which is how legacy entries such as "**/node_modules/**" are expressed.
type Set struct {
	// basenameLiterals are exact basename matches (e.g. "node_modules").
	basenameLiterals map[string]string
	// pathLiterals are exact full-path matches.
	pathLiterals map[string]string
	nonLiterals  []pattern
}

// NewSet compiles patterns. Empty entries are ignored; invalid ones are an error.
func NewSet(patterns ...[]string) (*Set, error) {
	s := &Set{
		basenameLiterals: make(map[string]string),
		pathLiterals:     make(map[string]string),
	}
	for _, list := range patterns {
		for _, raw := range list {
			if err := s.add(raw); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Set) add(raw string) error {
	if raw == "" {
		return nil
	}
	p := filepath.ToSlash(raw)
	fullPath := strings.Contains(p, "/")

	if !hasMeta(p) {
		if fullPath {
			s.pathLiterals[strings.TrimSuffix(p, "/")] = raw
		} else {
			s.basenameLiterals[p] = raw
		}
		return nil
	}

	entry := pattern{raw: raw, fullPath: fullPath}
	switch {
	case strings.HasSuffix(p, "*") && !hasMeta(p[:len(p)-1]):
		// "temp_*" or "/var/cache/*"
		entry.matchType = prefixMatch
		entry.clean = p[:len(p)-1]
	case strings.HasPrefix(p, "*") && !hasMeta(p[1:]):
		// "*.log"
		entry.matchType = suffixMatch
		entry.clean = p[1:]
	default:
		g, err := compile(p)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", raw, err)
		}
		entry.matchType = globMatch
		entry.g = g
	}
	s.nonLiterals = append(s.nonLiterals, entry)
	return nil
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.basenameLiterals) + len(s.pathLiterals) + len(s.nonLiterals)
}

// Match reports whether the entry at absPath matches the set and returns the pattern
// that matched. Directories are additionally tried with a trailing '/', so "a/b/**"
// style patterns prune the directory itself and not only its children.
func (s *Set) Match(absPath string, isDir bool) (string, bool) {
	return s.match(absPath, isDir, true)
}

// MatchPath is like Match but only consults patterns containing '/'. Basename
// patterns are ignored.
func (s *Set) MatchPath(absPath string, isDir bool) (string, bool) {
	return s.match(absPath, isDir, false)
}

func (s *Set) match(absPath string, isDir, byName bool) (string, bool) {
	if s == nil {
		return "", false
	}
	slashed := filepath.ToSlash(absPath)
	base := filepath.Base(absPath)

	if byName {
		if raw, ok := s.basenameLiterals[base]; ok {
			return raw, true
		}
	}
	if raw, ok := s.pathLiterals[slashed]; ok {
		return raw, true
	}

	candidates := []string{slashed}
	if isDir {
		candidates = append(candidates, slashed+"/")
	}
	for _, p := range s.nonLiterals {
		if !p.fullPath {
			if byName && p.match(base) {
				return p.raw, true
			}
			continue
		}
		for _, c := range candidates {
			if p.match(c) {
				return p.raw, true
			}
		}
	}
	return "", false
}

func (p *pattern) match(candidate string) bool {
	switch p.matchType {
	case prefixMatch:
		return strings.HasPrefix(candidate, p.clean)
	case suffixMatch:
		return strings.HasSuffix(candidate, p.clean)
	case globMatch:
		return p.g.Match(candidate)
	}
	return false
}
