package task

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// LogFilter is one grep-like stage in a log scan pipeline (spec.md §4.4
// step 20): "-v" (invert), "-i" (case-insensitive), "-E" (extended regex,
// the only flavour Go's regexp supports so it is also the default),
// "-e"/"-x" (pattern / whole-line match), "-o" (print only the matched
// substring), "-w" (match whole words only).
type LogFilter struct {
	Pattern      string
	Invert       bool
	IgnoreCase   bool
	WholeLine    bool
	OnlyMatching bool
	WholeWord    bool
}

func (f LogFilter) compile() (*regexp.Regexp, error) {
	pattern := f.Pattern
	if f.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if f.WholeLine {
		pattern = `^(?:` + pattern + `)$`
	}
	if f.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// ScanLog applies a sequence of filters to logPath in order and returns
// the surviving lines (or, for an -o filter, the matched substrings).
func ScanLog(logPath string, filters []LogFilter) ([]string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("scan log %q: %w", logPath, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log %q: %w", logPath, err)
	}

	for _, filt := range filters {
		re, err := filt.compile()
		if err != nil {
			return nil, fmt.Errorf("compile log filter %q: %w", filt.Pattern, err)
		}
		var next []string
		for _, line := range lines {
			matched := re.MatchString(line)
			if filt.Invert {
				matched = !matched
			}
			if !matched {
				continue
			}
			if filt.OnlyMatching && !filt.Invert {
				next = append(next, re.FindString(line))
				continue
			}
			next = append(next, line)
		}
		lines = next
	}
	return lines, nil
}

// WriteSuffix writes scan results to <step>.<suffix> in dir.
func WriteSuffix(dir, step, suffix string, matches []string) (string, error) {
	path := dir + "/" + step + "." + suffix
	content := strings.Join(matches, "\n")
	if len(matches) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
