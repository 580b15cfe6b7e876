package domain

import (
	"regexp"
	"sort"
	"time"
)

var flatKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateFlatKey checks that key is non-empty and contains only
// alphanumerics, underscores and hyphens.
func ValidateFlatKey(resource, key string) error {
	if !flatKeyPattern.MatchString(key) {
		return Validationf(resource, key, "keys may only contain alphanumeric characters, underscores and hyphens")
	}
	return nil
}

// ============================================================================
// Entities
// ============================================================================

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Attributes  []KeyValue `json:"attributes,omitempty"`
	DateCreated int64      `json:"date_created,omitempty"`
}

type Experiment struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Attributes  []KeyValue `json:"attributes,omitempty"`
	DateCreated int64      `json:"date_created,omitempty"`
}

type ExperimentRun struct {
	ID              string        `json:"id"`
	ProjectID       string        `json:"project_id"`
	ExperimentID    string        `json:"experiment_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	Attributes      []KeyValue    `json:"attributes,omitempty"`
	Hyperparameters []KeyValue    `json:"hyperparameters,omitempty"`
	Metrics         []KeyValue    `json:"metrics,omitempty"`
	Observations    []Observation `json:"observations,omitempty"`
	Artifacts       []ArtifactRef `json:"artifacts,omitempty"`
	Datasets        []ArtifactRef `json:"datasets,omitempty"`
	DateCreated     int64         `json:"date_created,omitempty"`
}

// KeyValue is a single logged key.
type KeyValue struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Observation is one entry of a run's append-only observation sequence.
// Timestamp is milliseconds since epoch.
type Observation struct {
	Key       string `json:"key"`
	Value     Value  `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// KeyValues converts a map into a key-sorted slice.
func KeyValues(m map[string]Value) []KeyValue {
	out := make([]KeyValue, 0, len(m))
	for k, v := range m {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sortKeyValues(out)
	return out
}

// KeyValueMap indexes kvs by key. Later duplicates win.
func KeyValueMap(kvs []KeyValue) map[string]Value {
	out := make(map[string]Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func sortKeyValues(kvs []KeyValue) {
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
}

// ============================================================================
// Artifacts
// ============================================================================

type ArtifactType string

const (
	ArtifactTypeImage ArtifactType = "IMAGE"
	ArtifactTypeModel ArtifactType = "MODEL"
	ArtifactTypeData  ArtifactType = "DATA"
	ArtifactTypeBlob  ArtifactType = "BLOB"
	ArtifactTypeCode  ArtifactType = "CODE"
)

// ArtifactRef records where a run's artifact lives. Identical checksums
// share one stored blob.
type ArtifactRef struct {
	Key               string       `json:"key"`
	Path              string       `json:"path"`
	PathOnly          bool         `json:"path_only,omitempty"`
	ArtifactType      ArtifactType `json:"artifact_type"`
	FilenameExtension string       `json:"filename_extension,omitempty"`
	Checksum          string       `json:"checksum,omitempty"`
	LinkedArtifactID  string       `json:"linked_artifact_id,omitempty"`
}

// CodeVersion describes the code a run was produced from: a git snapshot,
// an uploaded archive, or both.
type CodeVersion struct {
	GitSnapshot *GitSnapshot `json:"git_snapshot,omitempty"`
	CodeArchive *ArtifactRef `json:"code_archive,omitempty"`
	DateLogged  int64        `json:"date_logged,omitempty"`
}

type GitSnapshot struct {
	Repo      string   `json:"repo,omitempty"`
	Hash      string   `json:"hash,omitempty"`
	IsDirty   bool     `json:"is_dirty,omitempty"`
	Filepaths []string `json:"filepaths,omitempty"`
}

// ============================================================================
// Time
// ============================================================================

// ToMillis converts t to milliseconds since epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts milliseconds since epoch to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
