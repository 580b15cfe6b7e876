package artifact

import (
	"context"
	"errors"
	"net/http"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/transport"
)

// RemoteStore reaches blobs through presigned URLs issued by the tracking
// service.
type RemoteStore struct {
	requester ports.Requester
}

func NewRemoteStore(requester ports.Requester) *RemoteStore {
	return &RemoteStore{requester: requester}
}

func (s *RemoteStore) presign(ctx context.Context, key, method string) (string, error) {
	resp, err := s.requester.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   api.PathGetURLForArtifact,
		JSON:   api.GetURLRequest{StorageKey: key, Method: method},
	})
	if err != nil {
		return "", domain.Annotate(err, "artifact", key)
	}
	if resp == nil {
		return "", &domain.Error{Kind: domain.ErrTransport, Resource: "artifact", Key: key, Message: "no response"}
	}
	var out api.GetURLResponse
	if err := resp.Decode(&out); err != nil {
		return "", domain.Annotate(err, "artifact", key)
	}
	if out.URL == "" {
		return "", &domain.Error{Kind: domain.ErrTransport, Resource: "artifact", Key: key, Message: "service returned no url"}
	}
	return out.URL, nil
}

func (s *RemoteStore) Exists(ctx context.Context, key string) (bool, error) {
	url, err := s.presign(ctx, key, http.MethodGet)
	if err != nil {
		return false, err
	}
	_, err = s.requester.Do(ctx, transport.Request{Method: http.MethodHead, Path: url})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domain.Annotate(err, "artifact", key)
	}
	return true, nil
}

func (s *RemoteStore) Put(ctx context.Context, key string, blob []byte) error {
	url, err := s.presign(ctx, key, http.MethodPut)
	if err != nil {
		return err
	}
	_, err = s.requester.Do(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   url,
		Body:   blob,
		Header: http.Header{"Content-Type": {"application/octet-stream"}},
	})
	return domain.Annotate(err, "artifact", key)
}

func (s *RemoteStore) Get(ctx context.Context, key string) ([]byte, error) {
	url, err := s.presign(ctx, key, http.MethodGet)
	if err != nil {
		return nil, err
	}
	resp, err := s.requester.Do(ctx, transport.Request{Method: http.MethodGet, Path: url})
	if err != nil {
		return nil, domain.Annotate(err, "artifact", key)
	}
	if resp == nil {
		return nil, &domain.Error{Kind: domain.ErrTransport, Resource: "artifact", Key: key, Message: "no response"}
	}
	return resp.Body, nil
}
