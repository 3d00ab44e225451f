package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) *GitHubGateway {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: githubv4.NewEnterpriseClient(server.URL+"/graphql", server.Client()),
		logger:        discardLogger(),
	}
}

func TestNewGitHubGateway(t *testing.T) {
	gw, err := NewGitHubGateway("token", discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, gw.restClient)
	assert.NotNil(t, gw.graphqlClient)
}

func TestGitHubGateway_ListChangedFiles(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expected       []string
		expectedErrMsg string
	}{
		{
			name: "happy path - follows pagination",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/llvm/llvm-project/pulls/42/files", r.URL.Path)
				assert.Equal(t, "100", r.URL.Query().Get("per_page"))
				if r.URL.Query().Get("page") == "2" {
					fmt.Fprint(w, `[{"filename": "clang/lib/Sema/Sema.cpp"}]`)
					return
				}
				w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2&per_page=100>; rel="next"`, r.Host, r.URL.Path))
				fmt.Fprint(w, `[{"filename": "llvm/lib/IR/Value.cpp"}, {"filename": ".github/CODEOWNERS"}]`)
			},
			expected: []string{"llvm/lib/IR/Value.cpp", ".github/CODEOWNERS", "clang/lib/Sema/Sema.cpp"},
		},
		{
			name: "error case - GitHub API returns an error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Internal Server Error"}`)
			},
			expectedErrMsg: "failed to list files of llvm/llvm-project#42",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gw := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))
			files, err := gw.ListChangedFiles(context.Background(), "llvm", "llvm-project", 42)
			if tc.expectedErrMsg != "" {
				assert.ErrorContains(t, err, tc.expectedErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, files)
		})
	}
}

func TestGitHubGateway_FetchPatch(t *testing.T) {
	const patch = "From 1234 Mon Sep 17 00:00:00 2001\nFrom: Jane Doe <jane@example.com>\nSubject: [PATCH] fix\n"
	gw := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/llvm/llvm-project/pulls/7", r.URL.Path)
		assert.Equal(t, "application/vnd.github.v3.patch", r.Header.Get("Accept"))
		fmt.Fprint(w, patch)
	}))
	got, err := gw.FetchPatch(context.Background(), "llvm", "llvm-project", 7)
	require.NoError(t, err)
	assert.Equal(t, patch, got)
}

func TestGitHubGateway_FetchDisplayName(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "profile name", body: `{"login": "jdoe", "name": "Jane Doe"}`, expected: "Jane Doe"},
		{name: "falls back to login", body: `{"login": "jdoe"}`, expected: "jdoe"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gw := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/users/jdoe", r.URL.Path)
				fmt.Fprint(w, tc.body)
			}))
			name, err := gw.FetchDisplayName(context.Background(), "jdoe")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, name)
		})
	}
}
