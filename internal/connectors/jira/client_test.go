package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/connectors"
	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

func newTestClient(t *testing.T, h http.HandlerFunc, attempts uint) *Client {
	t.Helper()
	return newGuardedClient(t, h, connectors.GuardSettings{
		Name:        "jira-test",
		MaxRequests: 1,
		Timeout:     time.Second,
		Attempts:    attempts,
		CallTimeout: 5 * time.Second,
	})
}

func newGuardedClient(t *testing.T, h http.HandlerFunc, s connectors.GuardSettings) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	guard := connectors.NewGuard(s, nil, zap.NewNop())

	return NewClient(infra.JiraConfig{
		BaseURL:    srv.URL + "/",
		Username:   "bot@acme.io",
		APIToken:   "token",
		ProjectKey: "REQ",
	}, guard, zap.NewNop())
}

func TestCreateIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rest/api/3/issue", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "bot@acme.io", user)
		require.Equal(t, "token", pass)

		var body struct {
			Fields struct {
				Project     map[string]string `json:"project"`
				Summary     string            `json:"summary"`
				Labels      []string          `json:"labels"`
				Description json.RawMessage   `json:"description"`
			} `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "REQ", body.Fields.Project["key"])
		require.Equal(t, "Fix login", body.Fields.Summary)
		require.Equal(t, []string{"client-request", "pending-approval"}, body.Fields.Labels)
		require.Contains(t, string(body.Fields.Description), "Client: Acme")
		require.Contains(t, string(body.Fields.Description), "Request ID: r-1")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10001","key":"REQ-7","self":"x"}`))
	}, 1)

	issue, err := c.CreateIssue(context.Background(), domain.IssueInput{
		Summary: "Fix login", Description: "SSO broken", ClientName: "Acme", RequestID: "r-1",
	})
	require.NoError(t, err)
	require.Equal(t, "REQ-7", issue.Key)
	require.True(t, strings.HasSuffix(issue.URL, "/browse/REQ-7"))
	require.Equal(t, "Pending Approval", issue.Status)
}

func TestUpdateIssueStatusMatchesTransitionByName(t *testing.T) {
	var posted atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/issue/REQ-7/transitions", r.URL.Path)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"transitions":[{"id":"11","name":"In Progress"},{"id":"31","name":"APPROVED"}]}`))
			return
		}
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		posted.Store(body["transition"]["id"])
		w.WriteHeader(http.StatusNoContent)
	}, 1)

	require.NoError(t, c.UpdateIssueStatus(context.Background(), "REQ-7", "Approved"))
	require.Equal(t, "31", posted.Load())
}

func TestUpdateIssueStatusWithoutMatchingTransition(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"transitions":[{"id":"11","name":"In Progress"}]}`))
	}, 1)

	require.NoError(t, c.UpdateIssueStatus(context.Background(), "REQ-7", "Rejected"))
	require.EqualValues(t, 1, calls.Load())
}

func TestAddLabelMergesExisting(t *testing.T) {
	var put []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Equal(t, "labels", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"fields":{"labels":["client-request","urgent"]}}`))
		case http.MethodPut:
			var body struct {
				Fields struct {
					Labels []string `json:"labels"`
				} `json:"fields"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			put = body.Fields.Labels
			w.WriteHeader(http.StatusNoContent)
		}
	}, 1)

	ok, err := c.AddLabel(context.Background(), "REQ-7", "canceled")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"client-request", "urgent", "canceled"}, put)
}

func TestAddLabelAlreadyPresent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "label must not be rewritten")
		_, _ = w.Write([]byte(`{"fields":{"labels":["canceled"]}}`))
	}, 1)

	ok, err := c.AddLabel(context.Background(), "REQ-7", "canceled")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddLabelDoesNotOverwriteWhenReadFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
	}, 1)

	ok, err := c.AddLabel(context.Background(), "REQ-7", "canceled")
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, domain.KindExternalService, domain.KindOf(err))
}

func TestGetIssueNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
	}, 1)

	issue, err := c.GetIssue(context.Background(), "REQ-404")
	require.NoError(t, err)
	require.Nil(t, issue)
}

func TestGetIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key":"REQ-7","fields":{"status":{"name":"Approved"}}}`))
	}, 1)

	issue, err := c.GetIssue(context.Background(), "REQ-7")
	require.NoError(t, err)
	require.Equal(t, "Approved", issue.Status)
}

func TestThrottledReadIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"key":"REQ-7","fields":{"status":{"name":"Approved"}}}`))
	}, 2)

	issue, err := c.GetIssue(context.Background(), "REQ-7")
	require.NoError(t, err)
	require.Equal(t, "Approved", issue.Status)
	require.EqualValues(t, 2, calls.Load())
}

func TestRetryAfterIsCapped(t *testing.T) {
	var calls atomic.Int32
	c := newGuardedClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"key":"REQ-7","fields":{"status":{"name":"Done"}}}`))
	}, connectors.GuardSettings{
		Name:        "jira-test",
		MaxRequests: 1,
		Timeout:     time.Second,
		Attempts:    2,
		CallTimeout: time.Second,
		MaxDelay:    50 * time.Millisecond,
	})

	started := time.Now()
	_, err := c.GetIssue(context.Background(), "REQ-7")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
	require.Less(t, time.Since(started), 5*time.Second)
}

func TestSlowCommentIsPostedOnce(t *testing.T) {
	var posts atomic.Int32
	c := newGuardedClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		// первый ответ приходит после таймаута попытки, но комментарий уже создан
		if posts.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		w.WriteHeader(http.StatusCreated)
	}, connectors.GuardSettings{
		Name:        "jira-test",
		MaxRequests: 1,
		Timeout:     time.Second,
		Attempts:    3,
		CallTimeout: 100 * time.Millisecond,
	})

	err := c.AddComment(context.Background(), "REQ-1", "Request canceled in RequestFlow.")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindExternalService))
	require.EqualValues(t, 1, posts.Load())
}

func TestCreateIssueIsNotRetriedOnServerError(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 3)

	issue, err := c.CreateIssue(context.Background(), domain.IssueInput{Summary: "Export", RequestID: "r-1"})
	require.Error(t, err)
	require.Nil(t, issue)
	require.EqualValues(t, 1, posts.Load())
}

func TestLabelWriteIsRetried(t *testing.T) {
	var puts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"fields":{"labels":["requestflow"]}}`))
		case http.MethodPut:
			if puts.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}, 2)

	ok, err := c.AddLabel(context.Background(), "REQ-7", "canceled")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, puts.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, 3)

	err := c.AddComment(context.Background(), "REQ-7", "hello")
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestMockTracker(t *testing.T) {
	tr := NewTracker(infra.JiraConfig{ProjectKey: "OPS"}, nil, zap.NewNop())

	issue, err := tr.CreateIssue(context.Background(), domain.IssueInput{RequestID: "r-1"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(issue.Key, "OPS-MOCK-"))
	require.Equal(t, "https://jira.example.com/browse/"+issue.Key, issue.URL)

	ok, err := tr.AddLabel(context.Background(), issue.Key, "canceled")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := tr.GetIssue(context.Background(), issue.Key)
	require.NoError(t, err)
	require.Nil(t, got)
}
