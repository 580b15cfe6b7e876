package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DatasetType classifies how a dataset's versions are described.
type DatasetType string

const (
	DatasetTypeLocal DatasetType = "LOCAL_FILE_SYSTEM"
	DatasetTypeS3    DatasetType = "S3_FILE_SYSTEM"
	DatasetTypeQuery DatasetType = "QUERY"
)

// IsPath reports whether versions of this type carry path info.
func (t DatasetType) IsPath() bool {
	return t == DatasetTypeLocal || t == DatasetTypeS3
}

func (t DatasetType) Valid() bool {
	return t.IsPath() || t == DatasetTypeQuery
}

type Dataset struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	DatasetType DatasetType `json:"dataset_type"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Attributes  []KeyValue  `json:"attributes,omitempty"`
	TimeCreated int64       `json:"time_created,omitempty"`
	TimeUpdated int64       `json:"time_updated,omitempty"`
}

// DatasetVersion is an immutable snapshot of a dataset. TimeLogged is
// milliseconds since epoch.
type DatasetVersion struct {
	ID          string      `json:"id"`
	DatasetID   string      `json:"dataset_id"`
	DatasetType DatasetType `json:"dataset_type"`
	Version     int64       `json:"version,omitempty"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	TimeLogged  int64       `json:"time_logged"`
	Fingerprint string      `json:"fingerprint"`

	PathInfo  *PathDatasetVersionInfo  `json:"path_dataset_version_info,omitempty"`
	QueryInfo *QueryDatasetVersionInfo `json:"query_dataset_version_info,omitempty"`
}

type PathDatasetVersionInfo struct {
	LocationType     DatasetType       `json:"location_type"`
	BasePath         string            `json:"base_path"`
	Size             int64             `json:"size"`
	DatasetPartInfos []DatasetPartInfo `json:"dataset_part_info,omitempty"`
}

// DatasetPartInfo describes one file of a path dataset.
// LastModifiedAtSource is milliseconds since epoch.
type DatasetPartInfo struct {
	Path                 string `json:"path"`
	Size                 int64  `json:"size"`
	Checksum             string `json:"checksum,omitempty"`
	LastModifiedAtSource int64  `json:"last_modified_at_source,omitempty"`
}

type QueryDatasetVersionInfo struct {
	Query              string            `json:"query"`
	QueryTemplate      string            `json:"query_template,omitempty"`
	QueryParameters    map[string]string `json:"query_parameters,omitempty"`
	DataSourceURI      string            `json:"data_source_uri,omitempty"`
	ExecutionTimestamp int64             `json:"execution_timestamp,omitempty"`
	NumRecords         int64             `json:"num_records"`
}

// DatasetVersionInfo is the snapshot descriptor a dataset source produces.
type DatasetVersionInfo struct {
	Type  DatasetType
	Path  *PathDatasetVersionInfo
	Query *QueryDatasetVersionInfo
}

// Validate checks the descriptor is internally consistent.
func (i DatasetVersionInfo) Validate() error {
	switch {
	case !i.Type.Valid():
		return Validationf("dataset version", string(i.Type), "unknown dataset type")
	case i.Type.IsPath() && i.Path == nil:
		return Validationf("dataset version", string(i.Type), "path dataset requires path info")
	case i.Type == DatasetTypeQuery && i.Query == nil:
		return Validationf("dataset version", string(i.Type), "query dataset requires query info")
	}
	return nil
}

// Fingerprint is a content hash of the descriptor. Part order does not
// affect the result.
func (i DatasetVersionInfo) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "type=%s\n", i.Type)
	if i.Path != nil {
		parts := append([]DatasetPartInfo(nil), i.Path.DatasetPartInfos...)
		sort.Slice(parts, func(a, b int) bool { return parts[a].Path < parts[b].Path })
		fmt.Fprintf(h, "base=%s\nsize=%d\n", i.Path.BasePath, i.Path.Size)
		for _, p := range parts {
			fmt.Fprintf(h, "part=%s|%d|%s|%d\n", p.Path, p.Size, p.Checksum, p.LastModifiedAtSource)
		}
	}
	if i.Query != nil {
		params, _ := json.Marshal(i.Query.QueryParameters)
		fmt.Fprintf(h, "query=%s\ntemplate=%s\nparams=%s\nsource=%s\nrecords=%d\n",
			i.Query.Query, i.Query.QueryTemplate, params, i.Query.DataSourceURI, i.Query.NumRecords)
	}
	return hex.EncodeToString(h.Sum(nil))
}
