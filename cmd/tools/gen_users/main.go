// gen_users writes a fixture file for SEED_USERS_PATH.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"messenger/pkg/models"
)

var defaultNames = []string{
	"Alice Nguyen", "Bob Tran", "Carol Le", "Dave Pham", "Erin Hoang",
	"Frank Vu", "Grace Do", "Heidi Bui", "Ivan Dang", "Judy Ngo",
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDot := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastDot = false
			continue
		}
		if !lastDot {
			b.WriteByte('.')
			lastDot = true
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "user"
	}
	return out
}

func main() {
	outPath := flag.String("out", "data/users.json", "output json path")
	names := flag.String("names", "", "comma separated display names (default: built-in list)")
	n := flag.Int("n", len(defaultNames), "number of users when -names is empty")
	password := flag.String("password", "password123", "password for every generated user")
	flag.Parse()

	list := defaultNames
	if strings.TrimSpace(*names) != "" {
		list = strings.Split(*names, ",")
	} else if *n < len(list) {
		list = list[:max(*n, 0)]
	}

	out := make([]models.SeedUser, 0, len(list))
	used := map[string]int{}
	for _, name := range list {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		username := slugify(name)
		used[username]++
		if used[username] > 1 {
			username = fmt.Sprintf("%s%d", username, used[username])
		}
		out = append(out, models.SeedUser{
			Username: username,
			Password: *password,
			Name:     name,
		})
	}

	// đảm bảo folder tồn tại
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	j, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, j, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d users -> %s\n", len(out), *outPath)
}
