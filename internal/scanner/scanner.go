// Package scanner expands target paths into per-language file sets.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Matcher reports ignored paths. *ignore.Matcher implements it.
type Matcher interface {
	Match(path string, isDir bool) bool
}

// Classifier maps a file to a language. *plugin.Registry implements it.
type Classifier interface {
	Classify(path string) (string, bool)
}

// FileSet maps a language to its sorted, deduplicated absolute paths.
type FileSet map[string][]string

// Len returns the total number of files.
func (s FileSet) Len() int {
	n := 0
	for _, files := range s {
		n += len(files)
	}
	return n
}

// Languages returns the languages present, sorted.
func (s FileSet) Languages() []string {
	out := make([]string, 0, len(s))
	for lang := range s {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Scan classifies every target. Problems with individual targets become
// messages and never abort the scan; only ctx cancellation returns an
// error.
//
// Relative targets are resolved against the working directory; callers
// anchor them to the run root first.
func Scan(ctx context.Context, targets []string, ignored Matcher, classes Classifier) (FileSet, []string, error) {
	found := make(map[string]map[string]struct{})
	var messages []string

	add := func(lang, path string) {
		if found[lang] == nil {
			found[lang] = make(map[string]struct{})
		}
		found[lang][path] = struct{}{}
	}
	isIgnored := func(path string, isDir bool) bool {
		return ignored != nil && ignored.Match(path, isDir)
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, messages, err
		}
		path, err := filepath.Abs(target)
		if err != nil {
			messages = append(messages, fmt.Sprintf("Path does not exist: %s", target))
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			messages = append(messages, fmt.Sprintf("Path does not exist: %s", path))
			continue
		}

		if !info.IsDir() {
			if isIgnored(path, false) {
				continue
			}
			lang, ok := classes.Classify(path)
			if !ok {
				messages = append(messages, fmt.Sprintf("No supported language for file: %s", path))
				continue
			}
			add(lang, path)
			continue
		}

		hasFiles := false
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are skipped rather than failing the run.
				if d != nil && d.IsDir() && p != path {
					return fs.SkipDir
				}
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if d.IsDir() {
				if p != path && isIgnored(p, true) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || isIgnored(p, false) {
				return nil
			}
			if lang, ok := classes.Classify(p); ok {
				add(lang, p)
				hasFiles = true
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, messages, err
			}
			messages = append(messages, fmt.Sprintf("Failed to scan %s: %v", path, err))
		}
		if !hasFiles {
			messages = append(messages, fmt.Sprintf("No supported files in directory: %s", path))
		}
	}

	set := make(FileSet, len(found))
	for lang, paths := range found {
		files := make([]string, 0, len(paths))
		for p := range paths {
			files = append(files, p)
		}
		sort.Strings(files)
		set[lang] = files
	}
	return set, messages, nil
}
