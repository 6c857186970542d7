package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e-dream-ai/gpu-container-wan22/worker"
)

// stubRunner returns canned results without touching a GPU.
type stubRunner struct {
	result worker.GenerationResult
	err    error
}

func (s *stubRunner) Process(ctx context.Context, req worker.GenerationRequest) (worker.GenerationResult, error) {
	return s.result, s.err
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(New(&stubRunner{}).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateSuccess(t *testing.T) {
	runner := &stubRunner{result: worker.GenerationResult{
		Status:     worker.StatusSuccess,
		Task:       worker.TaskTextToVideo,
		Resolution: "1280x704",
		NumFrames:  120,
		Steps:      10,
		OutputPath: "/tmp/out.mp4",
	}}
	srv := httptest.NewServer(New(runner).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"input":{"prompt":"a red fox"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result worker.GenerationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, worker.StatusSuccess, result.Status)
	require.Equal(t, "1280x704", result.Resolution)
	require.Equal(t, 120, result.NumFrames)
}

func TestGenerateValidationErrorIs400(t *testing.T) {
	verr := &worker.ValidationError{Msg: `"prompt" is required`}
	runner := &stubRunner{result: worker.FailedResult(verr), err: verr}
	srv := httptest.NewServer(New(runner).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"task":"t2v"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result worker.GenerationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, worker.StatusFailed, result.Status)
	require.Contains(t, result.Error, "prompt")
}

func TestGenerateRuntimeErrorIs500(t *testing.T) {
	genErr := errors.New("video generation failed: CUDA out of memory")
	runner := &stubRunner{result: worker.FailedResult(genErr), err: genErr}
	srv := httptest.NewServer(New(runner).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"prompt":"a red fox"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var result worker.GenerationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, worker.StatusFailed, result.Status)
}

// blockingRunner stalls inside Process until released, recording how many
// jobs are inside at once.
type blockingRunner struct {
	mu      sync.Mutex
	inside  int
	maxSeen int
	release chan struct{}
}

func (b *blockingRunner) Process(ctx context.Context, req worker.GenerationRequest) (worker.GenerationResult, error) {
	b.mu.Lock()
	b.inside++
	if b.inside > b.maxSeen {
		b.maxSeen = b.inside
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.inside--
	b.mu.Unlock()
	return worker.GenerationResult{Status: worker.StatusSuccess}, nil
}

func TestGenerateSerializesJobs(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	srv := httptest.NewServer(New(runner).Routes())
	defer srv.Close()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/generate", "application/json",
				strings.NewReader(`{"prompt":"a red fox"}`))
			if err != nil {
				errCh <- err
				return
			}
			resp.Body.Close()
		}()
	}

	// Let the extra requests queue up on the mutex before releasing.
	time.Sleep(100 * time.Millisecond)
	close(runner.release)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	require.Equal(t, 1, runner.maxSeen)
}

type panickyRunner struct{}

func (panickyRunner) Process(context.Context, worker.GenerationRequest) (worker.GenerationResult, error) {
	panic("generator exploded")
}

func TestGeneratePanicIsRecoveredAndLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	srv := httptest.NewServer(New(panickyRunner{}).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"prompt":"a red fox"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, logs.String(), "Handled request")
	require.Contains(t, logs.String(), "status=500")
}

func TestGenerateMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(New(&stubRunner{}).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json",
		strings.NewReader(`{"prompt": `))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
