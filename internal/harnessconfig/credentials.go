package harnessconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
)

// LoadCredentials reads every file in dir as a KEY=VALUE credential file
// (`#` comments, optional single- or double-quoted values, per the
// specification's configuration surface) and merges them into a single map
// keyed by service name derived from the filename (without extension).
// Parsing is delegated to godotenv, which implements exactly this grammar.
func LoadCredentials(dir string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	if dir == "" {
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("harnessconfig: read credentials dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(dir, name)
		vars, err := godotenv.Read(full)
		if err != nil {
			return nil, fmt.Errorf("harnessconfig: parse credentials file %s: %w", full, err)
		}
		service := name
		if ext := filepath.Ext(name); ext != "" {
			service = name[:len(name)-len(ext)]
		}
		out[service] = vars
	}
	return out, nil
}
