package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/narrator/tts/segment"
)

var (
	frontmatterPattern = regexp.MustCompile(`(?s)\A---\r?\n.*?\r?\n---\r?\n`)
	titlePattern       = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)
)

// source is a readable narration script.
type source struct {
	reader io.ReadCloser
	path   string // empty for stdin
}

// sourceFromArgs opens the script named by args, or stdin when args is
// empty or "-".
func sourceFromArgs(args []string) (*source, error) {
	if len(args) == 0 || args[0] == "-" {
		if len(args) == 0 {
			pipe, err := stdinIsPipe()
			if err != nil {
				return nil, err
			}
			if !pipe {
				return nil, errors.New("missing script: pass a file or pipe text on stdin")
			}
		}
		return &source{reader: os.Stdin}, nil
	}

	p, err := homedir.Expand(args[0])
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{reader: f, path: abs}, nil
}

// script reads the whole source into a narration script.
func (s *source) script(title string, target time.Duration) (segment.Script, error) {
	defer s.reader.Close() //nolint:errcheck
	b, err := io.ReadAll(s.reader)
	if err != nil {
		return segment.Script{}, fmt.Errorf("unable to read from reader: %w", err)
	}
	return parseScript(string(b), title, s.path, target), nil
}

// parseScript builds a script from raw text. The title is the first level
// one heading, else the file name.
func parseScript(text, title, path string, target time.Duration) segment.Script {
	text = frontmatterPattern.ReplaceAllString(text, "")
	if title == "" {
		if m := titlePattern.FindStringSubmatch(text); m != nil {
			title = m[1]
		} else if path != "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	return segment.Script{Text: text, Title: title, TargetDuration: target}
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}
