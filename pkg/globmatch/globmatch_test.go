package globmatch

import (
	"path/filepath"
	"testing"
)

func TestMatches(t *testing.T) {
	testCases := []struct {
		name      string
		candidate string
		patterns  []string
		expected  bool
	}{
		{"No patterns", "anything", nil, false},
		{"Empty pattern list", "anything", []string{}, false},
		{"Exact literal", "node_modules", []string{"node_modules"}, true},
		{"Literal is not a substring match", "my_node_modules", []string{"node_modules"}, false},
		{"Star suffix", "debug.log", []string{"*.log"}, true},
		{"Star matches empty", ".log", []string{"*.log"}, true},
		{"Star crosses slash", "/home/u/a/b.log", []string{"/home/*.log"}, true},
		{"Question mark", "a1.txt", []string{"a?.txt"}, true},
		{"Question mark needs one char", "a.txt", []string{"a?.txt"}, false},
		{"Character class", "b.txt", []string{"[abc].txt"}, true},
		{"Negated class", "d.txt", []string{"[!abc].txt"}, true},
		{"Negated class excludes", "a.txt", []string{"[!abc].txt"}, false},
		{"Case sensitive", "README.md", []string{"readme.md"}, false},
		{"Any of several", "x.tmp", []string{"*.log", "*.tmp"}, true},
		{"Braces are literal", "{a,b}", []string{"{a,b}"}, true},
		{"Braces do not alternate", "a", []string{"{a,b}"}, false},
		{"Escaped star is literal", "a*b", []string{`a\*b`}, true},
		{"Escaped star does not expand", "axb", []string{`a\*b`}, false},
		{"Legacy double star", "/p/node_modules/x/y.js", []string{"**/node_modules/**"}, true},
		{"Invalid pattern falls back to literal", "[", []string{"["}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.candidate, tc.patterns); got != tc.expected {
				t.Errorf("Matches(%q, %v) = %v, want %v", tc.candidate, tc.patterns, got, tc.expected)
			}
		})
	}
}

// Unrelated patterns never match; a candidate equal to the pattern always does.
func TestMatchesNegativeControl(t *testing.T) {
	names := []string{"index.js", "Makefile", ".env", "photo 01.jpg", "a[1].txt"}
	unrelated := []string{"*.go", "vendor", "?", "[xyz]*", "build/*"}
	for _, n := range names {
		if Matches(n, unrelated) {
			t.Errorf("expected %q not to match unrelated patterns %v", n, unrelated)
		}
		if !Matches(n, []string{QuoteMeta(n)}) {
			t.Errorf("expected %q to match its own quoted pattern", n)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("*.log"); err != nil {
		t.Errorf("expected valid pattern, got %v", err)
	}
	if err := Validate("node_modules"); err != nil {
		t.Errorf("expected literal to be valid, got %v", err)
	}
	if err := Validate(""); err == nil {
		t.Error("expected empty pattern to be rejected")
	}
	if err := Validate("[abc"); err == nil {
		t.Error("expected unterminated class to be rejected")
	}
}

func TestSetMatch(t *testing.T) {
	root := filepath.FromSlash("/data/project")
	set, err := NewSet(
		[]string{"node_modules", ".git", "cache_*", "*.tmp"},
		[]string{"**/build/**", "/data/project/secret", "/data/project/logs/*", "[0-9]*.bak"},
		[]string{""},
	)
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	if set.Len() != 8 {
		t.Errorf("expected 8 patterns, got %d", set.Len())
	}

	testCases := []struct {
		name     string
		path     string
		isDir    bool
		expected bool
	}{
		{"Basename literal dir", "node_modules", true, true},
		{"Basename literal is whole segment", "node_modules_old", true, false},
		{"Prefix on basename", "cache_2024", true, true},
		{"Suffix on basename", "x/y/file.tmp", false, true},
		{"Suffix does not match other ext", "x/y/file.tmpl", false, false},
		{"Double star dir itself", "src/build", true, true},
		{"Double star file under dir", "src/build/out.o", false, true},
		{"Double star plain file named build", "src/build", false, false},
		{"Full path literal", "secret", true, true},
		{"Full path prefix", "logs/2024/app.log", false, true},
		{"Full path prefix sibling", "logsarchive/app.log", false, false},
		{"Class glob on basename", "1.bak", false, true},
		{"Class glob miss", "a.bak", false, false},
		{"Unrelated", "src/main.go", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			abs := filepath.Join(root, filepath.FromSlash(tc.path))
			if _, got := set.Match(abs, tc.isDir); got != tc.expected {
				t.Errorf("Match(%q, dir=%v) = %v, want %v", abs, tc.isDir, got, tc.expected)
			}
		})
	}
}

func TestSetMatchPath(t *testing.T) {
	set, err := NewSet([]string{"cache", ".*", "*.tmp", "/data/backups", "**/build/**"})
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}

	testCases := []struct {
		path     string
		isDir    bool
		expected bool
	}{
		{"/var/cache", true, false},
		{"/home/.config", true, false},
		{"/tmp/a.tmp", false, false},
		{"/data/backups", true, true},
		{"/src/build", true, true},
	}
	for _, tc := range testCases {
		if _, got := set.MatchPath(filepath.FromSlash(tc.path), tc.isDir); got != tc.expected {
			t.Errorf("MatchPath(%q) = %v, want %v", tc.path, got, tc.expected)
		}
	}
}

func TestSetQuotedBackupDir(t *testing.T) {
	backupDir := "/srv/backups [daily]"
	set, err := NewSet([]string{QuoteMeta(backupDir)})
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	if _, ok := set.Match(backupDir, true); !ok {
		t.Errorf("expected quoted backup dir to match itself")
	}
	if _, ok := set.Match("/srv/backups d", true); ok {
		t.Errorf("expected quoted backup dir not to act as a class")
	}
}

func TestNilSet(t *testing.T) {
	var set *Set
	if _, ok := set.Match("/a", false); ok {
		t.Error("nil set should never match")
	}
	if set.Len() != 0 {
		t.Error("nil set should be empty")
	}
}

func TestNewSetInvalidPattern(t *testing.T) {
	if _, err := NewSet([]string{"ok", "[bad"}); err == nil {
		t.Error("expected invalid pattern to be rejected")
	}
}
