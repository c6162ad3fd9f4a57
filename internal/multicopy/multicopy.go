// Package multicopy copies a file or folder into a target location under a
// timestamped generation name and prunes aged generations beyond a configured
// count. Retention is filename-encoded: the target directory is
// self-describing and portable, at the price of fragility to foreign files
// matching the generation pattern.
package multicopy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrSourceNotFound reports that the replication source is neither an
// existing file nor an existing folder.
var ErrSourceNotFound = errors.New("source file or folder does not exist")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15-04"
)

// Options control a single Replicate call.
type Options struct {
	// NumCopies is the number of generations to retain, including the one
	// created by this call. Must be at least 1.
	NumCopies int

	// MinPeriodDays skips the copy when the most recent existing generation
	// is younger than this many days. 0 always copies.
	MinPeriodDays int

	// TargetBaseName overrides the generation base name. Empty uses the
	// source file or folder stem.
	TargetBaseName string

	// AppendTime adds an HH-MM segment so several generations can coexist
	// per day.
	AppendTime bool

	// IgnoreErrors degrades copy and delete failures to logged warnings.
	IgnoreErrors bool
}

// Copier replicates files or folders on the local filesystem.
type Copier struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Copier.
func New(logger zerolog.Logger) *Copier {
	return &Copier{
		logger: logger.With().Str("component", "multicopy").Logger(),
		now:    time.Now,
	}
}

// Replicate copies src into targetDir under a generation name and then
// truncates the generation list to opts.NumCopies, oldest first.
func (c *Copier) Replicate(src, targetDir string, opts Options) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
	}
	isDir := info.IsDir()

	targetInfo, err := os.Stat(targetDir)
	if err != nil || !targetInfo.IsDir() {
		return fmt.Errorf("target directory %q does not exist", targetDir)
	}

	base, ext := splitName(src, isDir)
	if opts.TargetBaseName != "" {
		base = opts.TargetBaseName
	}

	now := c.now()
	generation := GenerationName(base, ext, now, opts.AppendTime)
	target := filepath.Join(targetDir, generation)

	existing := listGenerations(targetDir, base, ext)

	minPeriodDays := opts.MinPeriodDays
	if len(existing) > 0 {
		if _, ok := ParseGenerationDate(existing[0], base); !ok {
			// Unparseable newest generation: force the copy rather than
			// trust a date we cannot read.
			minPeriodDays = 0
		}
	} else {
		minPeriodDays = 0
	}

	if c.shouldCopy(existing, base, now, minPeriodDays) {
		if err := c.copy(src, target, isDir, opts.IgnoreErrors); err != nil {
			return err
		}
	} else {
		c.logger.Info().Str("target", target).Msg("skipping copy, last generation is recent enough")
	}

	// Re-enumerate: the list now includes the new generation, if created.
	existing = listGenerations(targetDir, base, ext)
	for _, name := range truncate(existing, opts.NumCopies) {
		path := filepath.Join(targetDir, name)
		c.logger.Info().Str("path", path).Msg("deleting aged generation")
		if err := os.RemoveAll(path); err != nil {
			if !opts.IgnoreErrors {
				return fmt.Errorf("delete generation %s: %w", path, err)
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("could not delete generation")
		}
	}

	return nil
}

func (c *Copier) shouldCopy(existing []string, base string, now time.Time, minPeriodDays int) bool {
	if minPeriodDays <= 0 || len(existing) == 0 {
		return true
	}
	last, ok := ParseGenerationDate(existing[0], base)
	if !ok {
		return true
	}
	today := now.Truncate(24 * time.Hour)
	days := int(today.Sub(last).Hours() / 24)
	return days >= minPeriodDays
}

func (c *Copier) copy(src, target string, isDir, ignoreErrors bool) error {
	c.logger.Info().Str("src", src).Str("target", target).Msg("copying source")

	if isDir {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove existing generation %s: %w", target, err)
		}
		failed, err := CopyTree(src, target, ignoreErrors)
		if err != nil {
			return fmt.Errorf("copy folder %s: %w", src, err)
		}
		for _, f := range failed {
			c.logger.Warn().Str("file", f).Msg("file could not be copied")
		}
		return nil
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing generation %s: %w", target, err)
	}
	if err := CopyFile(src, target); err != nil {
		if !ignoreErrors {
			return fmt.Errorf("copy file %s: %w", src, err)
		}
		c.logger.Warn().Err(err).Str("file", src).Msg("file could not be copied")
	}
	return nil
}

// GenerationName builds the timestamped name of a new generation:
// {base}_{YYYY-MM-DD}[_{HH-MM}]{ext}. Lexicographic order on these names is
// chronological.
func GenerationName(base, ext string, t time.Time, appendTime bool) string {
	name := base + "_" + t.Format(dateLayout)
	if appendTime {
		name += "_" + t.Format(timeLayout)
	}
	return name + ext
}

// ParseGenerationDate recovers the date from a generation name built by
// GenerationName: the ten characters after "{base}_", in the same YYYY-MM-DD
// form the name was built with.
func ParseGenerationDate(generation, base string) (time.Time, bool) {
	rest := strings.TrimPrefix(generation, base+"_")
	if rest == generation || len(rest) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, rest[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// listGenerations returns the names in targetDir matching {base}_*{ext},
// newest first.
func listGenerations(targetDir, base, ext string) []string {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, base+"_") && strings.HasSuffix(name, ext) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

// truncate returns the names beyond the first keep entries.
func truncate(names []string, keep int) []string {
	if keep < 0 {
		keep = 0
	}
	if len(names) <= keep {
		return nil
	}
	return names[keep:]
}

// splitName derives the generation base name and extension from the source
// path. Folders have no extension.
func splitName(src string, isDir bool) (base, ext string) {
	name := filepath.Base(src)
	if isDir {
		return name, ""
	}
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// CopyFile copies a regular file, replacing the target. Permissions of the
// source are preserved.
func CopyFile(src, target string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyTree recursively copies a folder. With ignoreErrors set, unreadable
// files are skipped and returned; otherwise the first failure aborts.
func CopyTree(src, target string, ignoreErrors bool) (failed []string, err error) {
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if ignoreErrors {
				failed = append(failed, path)
				return nil
			}
			return walkErr
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		dst := filepath.Join(target, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}

		if copyErr := CopyFile(path, dst); copyErr != nil {
			if ignoreErrors {
				failed = append(failed, path)
				return nil
			}
			return copyErr
		}
		return nil
	})
	return failed, err
}
