package s3source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

// API is the subset of the S3 client a Source needs.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Location is a bucket with an optional key. An empty key or one ending in
// "/" selects every object under that prefix.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) isPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses "s3://bucket/key".
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, domain.Validationf("s3 location", raw, "%v", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Location{}, domain.Validationf("s3 location", raw, "expected s3://bucket/key")
	}
	return Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}

// Source describes objects in S3.
type Source struct {
	api       API
	locations []Location
}

var _ ports.DatasetSource = (*Source)(nil)

func NewSource(api API, locations ...Location) *Source {
	return &Source{api: api, locations: locations}
}

// NewSourceFromEnv builds a Source using the default AWS credential chain.
func NewSourceFromEnv(ctx context.Context, rawLocations ...string) (*Source, error) {
	locs := make([]Location, 0, len(rawLocations))
	for _, raw := range rawLocations {
		loc, err := ParseLocation(raw)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSource(s3.NewFromConfig(cfg), locs...), nil
}

func (s *Source) Type() domain.DatasetType { return domain.DatasetTypeS3 }

func (s *Source) Describe(ctx context.Context) (domain.DatasetVersionInfo, error) {
	if len(s.locations) == 0 {
		return domain.DatasetVersionInfo{}, domain.Validationf("dataset source", "", "no s3 locations given")
	}

	info := &domain.PathDatasetVersionInfo{LocationType: domain.DatasetTypeS3}
	if len(s.locations) == 1 {
		info.BasePath = s.locations[0].String()
	} else {
		info.BasePath = "s3://"
	}

	for _, loc := range s.locations {
		var parts []domain.DatasetPartInfo
		var err error
		if loc.isPrefix() {
			parts, err = s.list(ctx, loc)
		} else {
			parts, err = s.head(ctx, loc)
		}
		if err != nil {
			return domain.DatasetVersionInfo{}, err
		}
		for _, p := range parts {
			info.Size += p.Size
		}
		info.DatasetPartInfos = append(info.DatasetPartInfos, parts...)
	}

	sort.Slice(info.DatasetPartInfos, func(i, j int) bool {
		return info.DatasetPartInfos[i].Path < info.DatasetPartInfos[j].Path
	})
	return domain.DatasetVersionInfo{Type: domain.DatasetTypeS3, Path: info}, nil
}

func (s *Source) head(ctx context.Context, loc Location) ([]domain.DatasetPartInfo, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Resource: "s3 object", Key: loc.String(), Err: err}
		}
		return nil, fmt.Errorf("head %s: %w", loc, err)
	}

	part := domain.DatasetPartInfo{
		Path:     loc.String(),
		Size:     aws.ToInt64(out.ContentLength),
		Checksum: strings.Trim(aws.ToString(out.ETag), `"`),
	}
	if out.LastModified != nil {
		part.LastModifiedAtSource = domain.ToMillis(*out.LastModified)
	}
	return []domain.DatasetPartInfo{part}, nil
}

func (s *Source) list(ctx context.Context, loc Location) ([]domain.DatasetPartInfo, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(loc.Bucket)}
	if loc.Key != "" {
		input.Prefix = aws.String(loc.Key)
	}

	var parts []domain.DatasetPartInfo
	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var nb *types.NoSuchBucket
			if errors.As(err, &nb) {
				return nil, &domain.Error{Kind: domain.ErrNotFound, Resource: "s3 bucket", Key: loc.Bucket, Err: err}
			}
			return nil, fmt.Errorf("list %s: %w", loc, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			part := domain.DatasetPartInfo{
				Path:     Location{Bucket: loc.Bucket, Key: key}.String(),
				Size:     aws.ToInt64(obj.Size),
				Checksum: strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			if obj.LastModified != nil {
				part.LastModifiedAtSource = domain.ToMillis(*obj.LastModified)
			}
			parts = append(parts, part)
		}
	}
	return parts, nil
}
