package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// fakeRequestSource is an in-memory RequestSource double that records
// status transitions for assertion.
type fakeRequestSource struct {
	pending     []string
	transitions map[string]apitypes.SkillRequestStatus
}

func newFakeRequestSource(pending ...string) *fakeRequestSource {
	return &fakeRequestSource{pending: pending, transitions: map[string]apitypes.SkillRequestStatus{}}
}

func (f *fakeRequestSource) SkillRequestsByStatus(ctx context.Context, status apitypes.SkillRequestStatus) ([]string, error) {
	if status != apitypes.SkillRequestPending {
		return nil, nil
	}
	return f.pending, nil
}

func (f *fakeRequestSource) SetSkillRequestStatus(ctx context.Context, query string, status apitypes.SkillRequestStatus) error {
	f.transitions[query] = status
	return nil
}

// TestReviewerInstallsQualifyingRemoteCandidate exercises the
// remote-registry branch: a candidate clearing the rating/download
// floor is installed and the request is marked found_remote.
func TestReviewerInstallsQualifyingRemoteCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []RemoteSkill{
				{Name: "weather-plus", Description: "richer weather lookups", Rating: 4.8, Downloads: 500},
			},
		})
	}))
	defer srv.Close()

	registry, _ := newTestRegistry(t)
	requests := newFakeRequestSource("weather in paris")
	reviewer := NewReviewer(registry, requests, NewRegistryClient(srv.URL), nil, DefaultReviewerConfig(), nil)

	require.NoError(t, reviewer.runCycle(context.Background()))

	require.Equal(t, apitypes.SkillRequestFoundRemote, requests.transitions["weather in paris"])
	_, err := registry.Get("weather_plus")
	require.NoError(t, err)
}

// TestReviewerFallsBackToGeneratedSkill exercises the no-qualifying-
// candidate branch: the request is marked created and a stand-in
// skill answers under a sanitized name derived from the query.
func TestReviewerFallsBackToGeneratedSkill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []RemoteSkill{}})
	}))
	defer srv.Close()

	registry, _ := newTestRegistry(t)
	requests := newFakeRequestSource("translate klingon")
	reviewer := NewReviewer(registry, requests, NewRegistryClient(srv.URL), nil, DefaultReviewerConfig(), nil)

	require.NoError(t, reviewer.runCycle(context.Background()))

	require.Equal(t, apitypes.SkillRequestCreated, requests.transitions["translate klingon"])
	_, err := registry.Get("translate_klingon")
	require.NoError(t, err)
}

// TestRegistryGetLogsSkillRequest confirms a miss on Get feeds the
// backlog the Reviewer drains.
func TestRegistryGetLogsSkillRequest(t *testing.T) {
	registry, _ := newTestRegistry(t)
	logger := newFakeRequestLogger()
	registry.SetRequestLogger(logger)

	_, err := registry.Get("no_such_skill")
	require.Error(t, err)
	require.Equal(t, 1, logger.counts["no_such_skill"])
}

type fakeRequestLogger struct {
	counts map[string]int
}

func newFakeRequestLogger() *fakeRequestLogger {
	return &fakeRequestLogger{counts: map[string]int{}}
}

func (f *fakeRequestLogger) IncrementSkillRequest(ctx context.Context, query string) error {
	f.counts[query]++
	return nil
}
