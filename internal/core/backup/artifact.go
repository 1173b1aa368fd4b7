// Package backup contains the pure naming and parsing rules for backup
// artifacts. Artifacts are immutable once written; everything here operates
// on names and metadata only.
package backup

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Artifact
// =============================================================================

// Scope is the logical content of an artifact.
type Scope string

const (
	ScopeDatabase Scope = "db"
	ScopeMedia    Scope = "media"
)

// timestampLayout is collision-resistant at one-second granularity, which is
// enough for a single-operator tool that runs one backup at a time.
const timestampLayout = "20060102T150405Z"

// Artifact identifies one immutable backup output.
type Artifact struct {
	ID    string // creation timestamp, shared by artifacts of one backup run
	Scope Scope
	Path  string
	Size  int64
}

var ErrBadArtifactName = errors.New("not a recognized artifact name")

// Stamp renders a creation timestamp as an artifact ID.
func Stamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// FileName returns the final on-disk name for an artifact.
func FileName(scope Scope, id string) string {
	switch scope {
	case ScopeDatabase:
		return fmt.Sprintf("db-%s.dump", id)
	case ScopeMedia:
		return fmt.Sprintf("media-%s.tar.gz", id)
	}
	return fmt.Sprintf("%s-%s", scope, id)
}

// TempName returns the temporary name an artifact is written under before
// the atomic rename. The dot prefix keeps listings from ever showing it as
// a valid artifact.
func TempName(scope Scope, id string) string {
	return ".tmp-" + FileName(scope, id)
}

// ParseFileName recovers scope and ID from a final artifact name.
func ParseFileName(name string) (Scope, string, error) {
	switch {
	case strings.HasPrefix(name, "db-") && strings.HasSuffix(name, ".dump"):
		id := strings.TrimSuffix(strings.TrimPrefix(name, "db-"), ".dump")
		if _, err := time.Parse(timestampLayout, id); err != nil {
			return "", "", ErrBadArtifactName
		}
		return ScopeDatabase, id, nil
	case strings.HasPrefix(name, "media-") && strings.HasSuffix(name, ".tar.gz"):
		id := strings.TrimSuffix(strings.TrimPrefix(name, "media-"), ".tar.gz")
		if _, err := time.Parse(timestampLayout, id); err != nil {
			return "", "", ErrBadArtifactName
		}
		return ScopeMedia, id, nil
	}
	return "", "", ErrBadArtifactName
}

// SortNewestFirst orders artifacts by descending ID (creation time), with
// database dumps before media archives within one run.
func SortNewestFirst(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].ID != artifacts[j].ID {
			return artifacts[i].ID > artifacts[j].ID
		}
		return artifacts[i].Scope == ScopeDatabase && artifacts[j].Scope != ScopeDatabase
	})
}
