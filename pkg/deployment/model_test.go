package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"modeldb-client/internal/testutil"
	"modeldb-client/internal/testutil/fakeserver"
	"modeldb-client/pkg/config"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
	"modeldb-client/pkg/tracking"
)

func noSleep(context.Context, time.Duration) error { return nil }

func quietLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func deployedRun(t *testing.T, opts fakeserver.Options) (*tracking.Client, *tracking.ExperimentRun, *fakeserver.Server) {
	t.Helper()
	srv := fakeserver.Start(t, opts)
	cfg := config.Default(srv.URL)
	c, err := tracking.NewClient(context.Background(), cfg,
		tracking.WithSleeper(noSleep),
		tracking.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	p, err := c.GetOrCreateProject(ctx, "p")
	require.NoError(t, err)
	e, err := p.GetOrCreateExperiment(ctx, "e")
	require.NoError(t, err)
	r, err := e.GetOrCreateRun(ctx, "r")
	require.NoError(t, err)
	_, err = r.Deploy(ctx, tracking.WithWait(0))
	require.NoError(t, err)
	return c, r, srv
}

func TestFromRunID_PredictEcho(t *testing.T) {
	c, r, _ := deployedRun(t, fakeserver.Options{})
	ctx := context.Background()

	m, err := FromRunID(ctx, c, r.ID(), WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Contains(t, m.URL(), fakeserver.PathPredict+r.ID())

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, m.PredictInto(ctx, map[string]any{"x": 1}, &out))
	assert.JSONEq(t, `{"x":1}`, out.Echo)
}

func TestPredict_Compression(t *testing.T) {
	c, r, _ := deployedRun(t, fakeserver.Options{
		Predictor: func(_ string, payload []byte) (any, error) {
			return json.RawMessage(payload), nil
		},
	})
	ctx := context.Background()

	m, err := FromRunID(ctx, c, r.ID(), WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	raw, err := m.Predict(ctx, []int{1, 2, 3}, WithCompression())
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(raw))
}

func TestPredict_ServerFailureIsPredictionError(t *testing.T) {
	c, r, _ := deployedRun(t, fakeserver.Options{
		Predictor: func(string, []byte) (any, error) {
			return nil, errors.New("input column missing")
		},
	})
	ctx := context.Background()

	m, err := FromRunID(ctx, c, r.ID(), WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Predict(ctx, []int{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPrediction)
	assert.Equal(t, http.StatusBadGateway, domain.StatusCode(err))
	assert.Contains(t, err.Error(), "input column missing")
}

func TestPredict_WrongToken(t *testing.T) {
	_, r, srv := deployedRun(t, fakeserver.Options{})
	ctx := context.Background()

	st, err := r.DeploymentStatus(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, st.Token)

	m, err := FromURL(srv.URL+st.API, "wrong", WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Predict(ctx, []int{1})
	assert.ErrorIs(t, err, domain.ErrPrediction)
	assert.Equal(t, http.StatusUnauthorized, domain.StatusCode(err))
}

func TestFromRun_NotDeployed(t *testing.T) {
	srv := fakeserver.Start(t, fakeserver.Options{})
	c, err := tracking.NewClient(context.Background(), config.Default(srv.URL), tracking.WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := c.GetOrCreateProject(ctx, "p")
	require.NoError(t, err)
	e, err := p.GetOrCreateExperiment(ctx, "e")
	require.NoError(t, err)
	r, err := e.GetOrCreateRun(ctx, "idle")
	require.NoError(t, err)

	_, err = FromRun(ctx, r, srv.URL)
	assert.ErrorIs(t, err, domain.ErrPrediction)
}

func TestPredict_RetriesWarmup(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusNotFound)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			assert.Equal(t, "tok", r.Header.Get(HeaderAccessToken))
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	m, err := FromURL(srv.URL+"/predict", "tok", WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	raw, err := m.Predict(context.Background(), map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPredict_GivesUpAfterBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"overloaded"}`))
	}))
	t.Cleanup(srv.Close)

	m, err := FromURL(srv.URL, "", WithMaxRetries(2), WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPrediction)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPredict_BadGatewayNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"model raised"}`))
	}))
	t.Cleanup(srv.Close)

	m, err := FromURL(srv.URL, "", WithSleeper(noSleep), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrPrediction)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPredict_NetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	m, err := FromURL(target, "", WithMaxRetries(0), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.NotErrorIs(t, err, domain.ErrPrediction)
}

func TestWithCompression_GzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	m, err := FromURL(srv.URL, "", WithLogger(quietLogger()))
	require.NoError(t, err)
	raw, err := m.Predict(context.Background(), map[string]string{"k": "v"}, WithCompression())
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]string{"k": "v"}, got)
}

func TestFromURL_RejectsRelative(t *testing.T) {
	_, err := FromURL("/predict", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFromResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1]`))
	}))
	t.Cleanup(srv.Close)

	resolver := new(testutil.MockEndpointResolver)
	resolver.On("Resolve", mock.Anything, "run-1").Return(ports.Endpoint{URL: srv.URL + "/v1/models/run-1:predict"}, nil)

	m, err := FromResolver(context.Background(), resolver, "run-1", WithLogger(quietLogger()))
	require.NoError(t, err)
	raw, err := m.Predict(context.Background(), []int{1})
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(raw))
	resolver.AssertExpectations(t)
}
