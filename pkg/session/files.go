package session

import (
	"context"
	"fmt"
	"strings"
)

// ReadFile returns the content of the file at path inside the container.
// ok is false when the file does not exist.
func (s *Session) ReadFile(ctx context.Context, path string) (content string, ok bool, err error) {
	result, err := s.Run(ctx, fmt.Sprintf("cat %s", shellQuote(path)))
	if err != nil {
		return "", false, err
	}
	if !result.Succeeded() {
		return "", false, nil
	}
	return result.Stdout, true, nil
}

// WriteFile appends a line with the given content to the file at path,
// creating it if necessary.
func (s *Session) WriteFile(ctx context.Context, path, content string) (*Result, error) {
	return s.Run(ctx, fmt.Sprintf("printf '%%s\\n' %s >> %s", shellQuote(content), shellQuote(path)))
}

// FileExists reports whether a regular file exists at path.
func (s *Session) FileExists(ctx context.Context, path string) (bool, error) {
	result, err := s.Run(ctx, fmt.Sprintf("test -f %s", shellQuote(path)))
	if err != nil {
		return false, err
	}
	return result.Succeeded(), nil
}

// DirExists reports whether a directory exists at path.
func (s *Session) DirExists(ctx context.Context, path string) (bool, error) {
	result, err := s.Run(ctx, fmt.Sprintf("test -d %s", shellQuote(path)))
	if err != nil {
		return false, err
	}
	return result.Succeeded(), nil
}

// ListFiles returns the names of the regular files directly under path.
func (s *Session) ListFiles(ctx context.Context, path string) ([]string, error) {
	entries, err := s.listEntries(ctx, path)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry, "/") {
			files = append(files, entry)
		}
	}
	return files, nil
}

// ListDirs returns the names of the directories directly under path, without
// trailing slashes.
func (s *Session) ListDirs(ctx context.Context, path string) ([]string, error) {
	entries, err := s.listEntries(ctx, path)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if strings.HasSuffix(entry, "/") {
			dirs = append(dirs, strings.TrimSuffix(entry, "/"))
		}
	}
	return dirs, nil
}

// listEntries lists path with one entry per line, directories marked with a
// trailing slash.
func (s *Session) listEntries(ctx context.Context, path string) ([]string, error) {
	result, err := s.RunIn(ctx, "ls -1p", path)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return nil, fmt.Errorf("failed to list %s: %s", path, strings.TrimSpace(result.Stderr))
	}
	return splitLines(result.Stdout), nil
}

// resolveWorkingDir converts a working directory to a path the container
// shell can cd into. Absolute and home-relative paths pass through; anything
// else resolves under the container user's home.
func resolveWorkingDir(dir string) string {
	if dir == "" || dir == "~" {
		return "~"
	}
	if strings.HasPrefix(dir, "/") || strings.HasPrefix(dir, "~/") {
		return dir
	}
	return "~/" + dir
}

// quoteWorkingDir quotes a resolved working directory for the shell. The
// leading ~ or ~/ stays outside the quotes so the shell still expands it.
func quoteWorkingDir(dir string) string {
	if dir == "~" {
		return dir
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		return "~/" + shellQuote(rest)
	}
	return shellQuote(dir)
}

// shellQuote single-quotes s for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
