package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// money_guard scans migration files and rejects binary floating point column
// types. Amounts, rates and thresholds must be NUMERIC.
// Exit code 0 = ok, 1 = violation, 2 = other error.
func main() {
	root := "internal/db/migrations"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations, err := scan(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "money_guard error: %v\n", err)
		os.Exit(2)
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "VIOLATION: %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("money_guard: OK")
}

var reFloat = regexp.MustCompile(`(?i)\b(real|float4|float8|double\s+precision|float(\s*\(\s*\d+\s*\))?|money)\b`)

func scan(dir string) ([]string, error) {
	var violations []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		found, err := checkFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	return violations, err
}

func checkFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var found []string
	s := bufio.NewScanner(f)
	line := 0
	for s.Scan() {
		line++
		text := stripComment(s.Text())
		if reFloat.MatchString(text) {
			found = append(found, fmt.Sprintf("%s:%d: %s", path, line, text))
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

func stripComment(line string) string {
	for i := 0; i+1 < len(line); i++ {
		if line[i] == '-' && line[i+1] == '-' {
			return line[:i]
		}
	}
	return line
}
