package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

// Source describes files under one or more local paths.
type Source struct {
	paths       []string
	skipHashing bool
}

var _ ports.DatasetSource = (*Source)(nil)

type Option func(*Source)

// WithoutChecksums records sizes and timestamps only.
func WithoutChecksums() Option {
	return func(s *Source) { s.skipHashing = true }
}

func NewSource(paths []string, opts ...Option) *Source {
	s := &Source{paths: append([]string(nil), paths...)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Type() domain.DatasetType { return domain.DatasetTypeLocal }

func (s *Source) Describe(ctx context.Context) (domain.DatasetVersionInfo, error) {
	if len(s.paths) == 0 {
		return domain.DatasetVersionInfo{}, domain.Validationf("dataset source", "", "no paths given")
	}

	info := &domain.PathDatasetVersionInfo{LocationType: domain.DatasetTypeLocal}
	for _, root := range s.paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return domain.DatasetVersionInfo{}, fmt.Errorf("resolve %s: %w", root, err)
		}
		if info.BasePath == "" {
			info.BasePath = abs
		} else {
			info.BasePath = commonDir(info.BasePath, abs)
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				return nil
			}
			part, err := s.describeFile(path, d)
			if err != nil {
				return err
			}
			info.DatasetPartInfos = append(info.DatasetPartInfos, part)
			info.Size += part.Size
			return nil
		})
		if os.IsNotExist(err) {
			return domain.DatasetVersionInfo{}, &domain.Error{Kind: domain.ErrNotFound, Resource: "dataset path", Key: root, Err: err}
		}
		if err != nil {
			return domain.DatasetVersionInfo{}, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Slice(info.DatasetPartInfos, func(i, j int) bool {
		return info.DatasetPartInfos[i].Path < info.DatasetPartInfos[j].Path
	})
	return domain.DatasetVersionInfo{Type: domain.DatasetTypeLocal, Path: info}, nil
}

func (s *Source) describeFile(path string, d fs.DirEntry) (domain.DatasetPartInfo, error) {
	fi, err := d.Info()
	if err != nil {
		return domain.DatasetPartInfo{}, err
	}
	part := domain.DatasetPartInfo{
		Path:                 path,
		Size:                 fi.Size(),
		LastModifiedAtSource: domain.ToMillis(fi.ModTime()),
	}
	if s.skipHashing {
		return part, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.DatasetPartInfo{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return domain.DatasetPartInfo{}, err
	}
	part.Checksum = hex.EncodeToString(h.Sum(nil))
	return part, nil
}

// commonDir returns the deepest directory containing both a and b.
func commonDir(a, b string) string {
	for {
		rel, err := filepath.Rel(a, b)
		if err == nil && rel != ".." && !startsWithParent(rel) {
			return a
		}
		parent := filepath.Dir(a)
		if parent == a {
			return a
		}
		a = parent
	}
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
