package selection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/globmatch"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// IncludeRule is a glob expression plus a rule-scoped list of names to skip.
type IncludeRule struct {
	Pattern string
	Exclude []string
}

// ExclusionSet holds the global exclusion layers.
type ExclusionSet struct {
	Files []string // matched against file basenames
	Dirs  []string // matched against directory names; prunes descent
}

// Skip reasons.
const (
	ReasonSymlink    = "symlink"
	ReasonNotRegular = "not a regular file"
	ReasonUnreadable = "unreadable"
	ReasonVanished   = "vanished"
)

// Skip records an entry that was left out for a reason other than an exclusion pattern.
type Skip struct {
	Path   string
	Reason string
	Err    error
}

// Result is the outcome of Resolve.
type Result struct {
	// Files holds absolute paths, sorted, each exactly once.
	Files []string
	// Skipped lists entries that could not or must not be selected.
	Skipped []Skip
}

// Engine resolves include rules against the live filesystem. It keeps no state
// between calls, so resolving twice on an unchanged tree yields the same result.
type Engine struct {
	metrics Metrics
}

// NewEngine creates a selection engine. A nil metrics disables counting.
func NewEngine(metrics Metrics) *Engine {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Engine{metrics: metrics}
}

// resolveRun holds the per-call state of Resolve.
type resolveRun struct {
	ctx     context.Context
	metrics Metrics
	seen    map[string]struct{}
	result  Result
}

// Resolve expands rules into a SelectedFileSet. Symlinks are never followed and every
// entry, globbed or walked, is filtered the same way. Name exclusions on parent
// directories only apply below the pattern's literal base. A glob that matches
// nothing contributes nothing. A matched directory that cannot be read at all is an
// error; unreadable directories further down are skipped with a warning.
func (e *Engine) Resolve(ctx context.Context, rules []IncludeRule, exclusions ExclusionSet) (Result, error) {
	run := &resolveRun{
		ctx:     ctx,
		metrics: e.metrics,
		seen:    make(map[string]struct{}),
	}

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := run.resolveRule(rule, exclusions); err != nil {
			return Result{}, err
		}
	}

	sort.Strings(run.result.Files)
	return run.result, nil
}

func (r *resolveRun) resolveRule(rule IncludeRule, exclusions ExclusionSet) error {
	fileSet, err := globmatch.NewSet(rule.Exclude, exclusions.Files)
	if err != nil {
		return fmt.Errorf("invalid file exclusions for %q: %w", rule.Pattern, err)
	}
	dirSet, err := globmatch.NewSet(rule.Exclude, exclusions.Dirs)
	if err != nil {
		return fmt.Errorf("invalid directory exclusions for %q: %w", rule.Pattern, err)
	}

	matches, base, err := expandInclude(rule.Pattern)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		plog.Debug("Include pattern matched nothing", "pattern", rule.Pattern)
		return nil
	}

	for _, match := range matches {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := r.resolveEntry(match, base, fileSet, dirSet); err != nil {
			return err
		}
	}
	return nil
}

// expandInclude expands the include glob to absolute, cleaned paths. base is the
// literal directory prefix of the pattern, the part before the first glob segment.
func expandInclude(pattern string) (matches []string, base string, err error) {
	expanded, err := util.ExpandPath(pattern)
	if err != nil {
		return nil, "", err
	}
	if !filepath.IsAbs(expanded) {
		if expanded, err = filepath.Abs(expanded); err != nil {
			return nil, "", fmt.Errorf("could not determine absolute path for include %q: %w", pattern, err)
		}
	}

	matches, err = doublestar.FilepathGlob(expanded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid include pattern %q: %w", pattern, err)
	}
	for i, m := range matches {
		matches[i] = filepath.Clean(m)
	}

	base, _ = doublestar.SplitPattern(filepath.ToSlash(expanded))
	return matches, filepath.Clean(filepath.FromSlash(base)), nil
}

func (r *resolveRun) resolveEntry(path, base string, fileSet, dirSet *globmatch.Set) error {
	r.metrics.AddEntriesProcessed(1)

	if parent, pattern, ok := excludedAncestor(path, base, dirSet); ok {
		plog.Debug("Dropping match inside excluded directory", "path", path, "dir", parent, "pattern", pattern)
		r.metrics.AddDirsExcluded(1)
		return nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		// Removed between globbing and inspection.
		r.skip(path, ReasonVanished, err)
		return nil
	}

	switch mode := info.Mode(); {
	case mode&fs.ModeSymlink != 0:
		r.skipSymlink(path)
	case mode.IsDir():
		if pattern, ok := dirSet.Match(path, true); ok {
			plog.Warn("[!] Include matched an excluded directory", "path", path, "pattern", pattern)
			r.metrics.AddDirsExcluded(1)
			return nil
		}
		return r.walk(path, fileSet, dirSet)
	case mode.IsRegular():
		r.considerFile(path, fileSet)
	default:
		r.skip(path, ReasonNotRegular, nil)
	}
	return nil
}

// excludedAncestor reports the first parent directory of path that matches dirSet.
// Parents strictly below base are matched in full; base and everything above it
// only against full-path patterns, since the user named those directories.
func excludedAncestor(path, base string, dirSet *globmatch.Set) (string, string, bool) {
	if dirSet.Len() == 0 {
		return "", "", false
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		match := dirSet.MatchPath
		if isBelow(dir, base) {
			match = dirSet.Match
		}
		if pattern, ok := match(dir, true); ok {
			return dir, pattern, true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", "", false
		}
	}
}

// isBelow reports whether dir lies strictly inside base.
func isBelow(dir, base string) bool {
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// walk descends into root. An error reading root itself is returned; errors below
// root are recorded as skips and the affected subtree is ignored.
func (r *resolveRun) walk(root string, fileSet, dirSet *globmatch.Set) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			r.skip(path, ReasonUnreadable, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		r.metrics.AddEntriesProcessed(1)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			r.skipSymlink(path)
		case d.IsDir():
			if pattern, ok := dirSet.Match(path, true); ok {
				r.excludeDir(path, pattern)
				return filepath.SkipDir
			}
		case d.Type().IsRegular():
			r.considerFile(path, fileSet)
		default:
			r.skip(path, ReasonNotRegular, nil)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return nil
}

func (r *resolveRun) considerFile(path string, fileSet *globmatch.Set) {
	if pattern, ok := fileSet.Match(path, false); ok {
		plog.Debug("Excluding file", "path", path, "pattern", pattern)
		r.metrics.AddFilesExcluded(1)
		return
	}
	if _, dup := r.seen[path]; dup {
		r.metrics.AddDuplicates(1)
		return
	}
	r.seen[path] = struct{}{}
	r.result.Files = append(r.result.Files, path)
	r.metrics.AddFilesSelected(1)
}

func (r *resolveRun) excludeDir(path, pattern string) {
	plog.Debug("Pruning directory", "path", path, "pattern", pattern)
	r.metrics.AddDirsExcluded(1)
}

func (r *resolveRun) skipSymlink(path string) {
	plog.Debug("Skipping symlink", "path", path)
	r.metrics.AddSymlinksSkipped(1)
	r.result.Skipped = append(r.result.Skipped, Skip{Path: path, Reason: ReasonSymlink})
}

func (r *resolveRun) skip(path, reason string, err error) {
	if err != nil {
		plog.Warn("[!] Skipping entry", "path", path, "reason", reason, "error", err)
	} else {
		plog.Info("[!] Skipping entry", "path", path, "reason", reason)
	}
	r.metrics.AddEntriesSkipped(1)
	r.result.Skipped = append(r.result.Skipped, Skip{Path: path, Reason: reason, Err: err})
}
