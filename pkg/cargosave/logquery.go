package cargosave

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

// LogSelector picks which invocation's log a query reads. Zero value selects
// the most recent log.
type LogSelector struct {
	// ID selects an explicit invocation
	ID string
	// Last selects the Nth most recent invocation (1 = most recent)
	Last int
}

// QueryLogs answers a query over a stored build log. Queries are pure reads:
// they never mutate the store and never spawn cargo.
//
// Modes: head, tail, range, grep, errors, warnings, all.
func QueryLogs(store *cache.Store, sel LogSelector, mode, param string, useRegex bool, out io.Writer) error {
	logPath, err := resolveLog(store, sel)
	if err != nil {
		return err
	}

	switch mode {
	case "head":
		return logHead(logPath, parseCount(param), out)
	case "tail":
		return logTail(logPath, parseCount(param), out)
	case "range":
		a, b, err := parseRange(param)
		if err != nil {
			return err
		}
		return logRange(logPath, a, b, out)
	case "grep":
		return logGrep(logPath, param, useRegex, out)
	case "errors", "error":
		return logScan(logPath, out, func(line string) bool {
			return strings.Contains(line, "error[") || strings.Contains(line, "error:")
		})
	case "warnings", "warning":
		return logScan(logPath, out, func(line string) bool {
			return strings.Contains(line, "warning:")
		})
	case "all":
		return logScan(logPath, out, func(string) bool { return true })
	}
	return xerrors.Errorf("unknown query mode %q", mode)
}

func resolveLog(store *cache.Store, sel LogSelector) (string, error) {
	if sel.ID != "" {
		p := store.LogPath(sel.ID)
		if _, err := os.Stat(p); err != nil {
			return "", xerrors.Errorf("log not found for invocation %s", sel.ID)
		}
		return p, nil
	}
	if sel.Last > 0 {
		invs, err := store.RecentInvocations(sel.Last)
		if err != nil || len(invs) < sel.Last {
			return "", xerrors.Errorf("no stored invocation at position %d", sel.Last)
		}
		return store.LogPath(invs[sel.Last-1].ID), nil
	}

	id, err := store.LatestLogID()
	if err != nil {
		return "", xerrors.Errorf("no cached logs found")
	}
	return store.LogPath(id), nil
}

const defaultQueryLines = 50

func parseCount(param string) int {
	if n, err := strconv.Atoi(param); err == nil && n > 0 {
		return n
	}
	return defaultQueryLines
}

// parseRange parses an inclusive, 1-indexed "a-b" (or "a:b") line range.
func parseRange(param string) (int, int, error) {
	parts := strings.FieldsFunc(param, func(r rune) bool { return r == '-' || r == ':' })
	if len(parts) != 2 {
		return 0, 0, xerrors.Errorf("invalid range %q: expected a-b", param)
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, xerrors.Errorf("invalid range start %q", parts[0])
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, xerrors.Errorf("invalid range end %q", parts[1])
	}
	if a < 1 || b < a {
		return 0, 0, xerrors.Errorf("invalid range %d-%d", a, b)
	}
	return a, b, nil
}

// logHead streams the first k lines and stops reading.
func logHead(path string, k int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := newLogScanner(f)
	for i := 0; i < k && scanner.Scan(); i++ {
		fmt.Fprintln(out, scanner.Text())
	}
	return scanner.Err()
}

// tailBlockSize is how much logTail reads per backward step.
const tailBlockSize = 64 * 1024

// logTail reads blocks backward from the end of the file until it has seen k
// lines, so the cost scales with k rather than the log size.
func logTail(path string, k int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	var (
		buf []byte
		off = stat.Size()
	)
	for off > 0 && bytes.Count(buf, []byte{'\n'}) <= k {
		step := int64(tailBlockSize)
		if step > off {
			step = off
		}
		off -= step

		block := make([]byte, step)
		if _, err := f.ReadAt(block, off); err != nil && err != io.EOF {
			return err
		}
		buf = append(block, buf...)
	}

	lines := strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
	if len(buf) == 0 {
		lines = nil
	}
	if len(lines) > k {
		lines = lines[len(lines)-k:]
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

// logRange prints the inclusive 1-indexed line range [a, b], stopping as soon
// as b is passed.
func logRange(path string, a, b int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := newLogScanner(f)
	for n := 1; scanner.Scan(); n++ {
		if n > b {
			break
		}
		if n >= a {
			fmt.Fprintln(out, scanner.Text())
		}
	}
	return scanner.Err()
}

// logGrep prints matching lines. The default is a substring match which is
// case-insensitive when the pattern is all-lowercase; regex mode compiles the
// pattern instead.
func logGrep(path, pattern string, useRegex bool, out io.Writer) error {
	if useRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return xerrors.Errorf("invalid pattern: %w", err)
		}
		return logScan(path, out, re.MatchString)
	}

	if pattern == strings.ToLower(pattern) {
		return logScan(path, out, func(line string) bool {
			return strings.Contains(strings.ToLower(line), pattern)
		})
	}
	return logScan(path, out, func(line string) bool {
		return strings.Contains(line, pattern)
	})
}

func logScan(path string, out io.Writer, match func(string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := newLogScanner(f)
	for scanner.Scan() {
		if match(scanner.Text()) {
			fmt.Fprintln(out, scanner.Text())
		}
	}
	return scanner.Err()
}

func newLogScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
