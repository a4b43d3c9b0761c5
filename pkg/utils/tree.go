package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// WriteTree walks rootDir and writes a text directory tree of it to w
// Directories are listed before files; names sort case-insensitively
func WriteTree(w io.Writer, rootDir string, log *logrus.Entry) error {
	info, err := os.Stat(rootDir)
	if err != nil {
		return fmt.Errorf("%w: checking tree root '%s': %w", ErrFilesystem, rootDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: tree root '%s' is not a directory", ErrFilesystem, rootDir)
	}

	if _, err := fmt.Fprintf(w, "%s/\n", filepath.Base(rootDir)); err != nil {
		return err
	}
	log.Debugf("Rendering tree for: %s", rootDir)
	return walkDirRecursive(w, rootDir, "", log)
}

// walkDirRecursive performs the recursive directory walk and writes entries
func walkDirRecursive(w io.Writer, dirPath string, currentIndent string, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("%w: reading directory '%s': %w", ErrFilesystem, dirPath, err)
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		isLast := i == len(entries)-1

		connector := entryPrefix
		nextIndent := currentIndent + verticalLine
		if isLast {
			connector = lastEntryPrefix
			nextIndent = currentIndent + indentPrefix
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", currentIndent, connector, name); err != nil {
			return err
		}

		if entry.IsDir() {
			if err := walkDirRecursive(w, filepath.Join(dirPath, entry.Name()), nextIndent, log); err != nil {
				return err
			}
		}
	}
	return nil
}
