package puller

import (
	"fmt"
	"regexp"
	"strings"
)

const maxPartitionLen = 63

var (
	nonIdentRun    = regexp.MustCompile(`[^a-z0-9]+`)
	validPartition = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
)

// PartitionName maps a category name onto the identifier used both as its
// table name and as its archive subdirectory. Names that cannot be made safe
// are rejected rather than passed through.
func PartitionName(category string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(category))
	s = nonIdentRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "", fmt.Errorf("category %q has no usable characters", category)
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	if len(s) > maxPartitionLen {
		s = strings.TrimRight(s[:maxPartitionLen], "_")
	}
	if err := checkPartition(s); err != nil {
		return "", fmt.Errorf("category %q: %w", category, err)
	}
	return s, nil
}

func checkPartition(name string) error {
	if !validPartition.MatchString(name) {
		return fmt.Errorf("invalid partition name %q", name)
	}
	if name == (RecentLink{}).TableName() || strings.HasPrefix(name, "sqlite_") {
		return fmt.Errorf("partition name %q is reserved", name)
	}
	return nil
}
