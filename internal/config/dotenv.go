package config

import (
	"bufio"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// envFileDepth bounds the walk from the working directory towards the root.
const envFileDepth = 6

// LoadEnvFile applies a .env file to the process environment. ENV_FILE names
// the file explicitly; otherwise the working directory and its parents are
// searched. Variables already present in the environment are kept.
func LoadEnvFile(logger *log.Logger) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		dir, err := os.Getwd()
		if err != nil {
			logger.Printf("WARN: failed to locate .env: %v", err)
			return
		}
		if path = findEnvFile(dir); path == "" {
			logger.Printf("WARN: .env not found in current or parent directories")
			return
		}
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Printf("WARN: failed to open %s: %v", path, err)
		return
	}
	defer file.Close()

	vars, malformed, err := parseEnv(file)
	if err != nil {
		logger.Printf("WARN: failed to load %s: %v", path, err)
		return
	}
	if len(malformed) > 0 {
		logger.Printf("WARN: skipped malformed lines in %s lines=%v", path, malformed)
	}
	set := 0
	for _, kv := range vars {
		if _, exists := os.LookupEnv(kv.key); exists {
			continue
		}
		if err := os.Setenv(kv.key, kv.value); err != nil {
			logger.Printf("WARN: failed to set %s from env file", kv.key)
			continue
		}
		set++
	}
	logger.Printf("loaded env from %s vars=%d", path, set)
}

func findEnvFile(dir string) string {
	for i := 0; i < envFileDepth; i++ {
		path := filepath.Join(dir, ".env")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

type envVar struct {
	key   string
	value string
}

// parseEnv reads KEY=value lines in file order. Blank lines and # comments
// are skipped, an "export " prefix is allowed, and an unquoted value ends at
// " #". Lines without "=" or with an empty key are skipped and their numbers
// returned.
func parseEnv(r io.Reader) (vars []envVar, malformed []int, err error) {
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			malformed = append(malformed, lineNum)
			continue
		}
		vars = append(vars, envVar{key: key, value: envValue(value)})
	}
	return vars, malformed, scanner.Err()
}

func envValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if unquoted := trimQuotes(raw); unquoted != raw {
		return unquoted
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if (value[0] == '"' && value[len(value)-1] == '"') ||
		(value[0] == '\'' && value[len(value)-1] == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
