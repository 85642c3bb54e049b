package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/api/apitest"
	"github.com/on-cure/oncare/internal/errors"
)

func TestContractLoads(t *testing.T) {
	contract, err := api.LoadContract(context.Background(), "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, 14, contract.Operations())
	assert.Contains(t, string(api.ContractDocument()), "/api/auth/session")
}

func TestContractDocumentIsYAML(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(api.ContractDocument(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/posts")
}

func TestContractAcceptsConformingBackend(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	u := srv.AddUser("amina@example.com", "s3cret", "Amina", "Odhiambo")
	srv.AddNotification(u.ID, api.NotificationComment, "Otieno commented on your post")
	srv.AddPost(u.ID, "Day 3 of chemo, feeling stronger", api.PrivacyPublic)

	contract, err := api.LoadContract(context.Background(), srv.URL)
	require.NoError(t, err)
	c, _ := newClient(t, srv, api.WithContract(contract))
	ctx := context.Background()

	_, err = c.Login(ctx, "amina@example.com", "s3cret")
	require.NoError(t, err)
	_, err = c.GetSession(ctx)
	require.NoError(t, err)
	_, err = c.ListNotifications(ctx, 1, 5)
	require.NoError(t, err)
	_, err = c.UnreadNotificationCount(ctx)
	require.NoError(t, err)
	_, err = c.FollowCounts(ctx, u.ID)
	require.NoError(t, err)
	_, err = c.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	_, err = c.CreatePost(ctx, api.NewPost{Content: "Thank you all for the support"})
	require.NoError(t, err)
	srv.SetPostsEnvelope(true)
	_, err = c.ListPosts(ctx, 0, 0)
	require.NoError(t, err)

	// Undeclared error statuses are not checked.
	_, err = c.GetProfile(ctx, 404)
	assert.False(t, errors.HasCode(err, errors.ErrCodeContractViolation))
}

func TestContractRejectsDrift(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		call func(context.Context, *api.Client) error
	}{
		{
			name: "unread count as string",
			path: "/api/notifications/unread-count",
			body: `{"count": "3"}`,
			call: func(ctx context.Context, c *api.Client) error {
				_, err := c.UnreadNotificationCount(ctx)
				return err
			},
		},
		{
			name: "notification with unknown type",
			path: "/api/notifications",
			body: `[{"id": 1, "type": "poke", "message": "hi", "is_read": false}]`,
			call: func(ctx context.Context, c *api.Client) error {
				_, err := c.ListNotifications(ctx, 0, 0)
				return err
			},
		},
		{
			name: "post with unknown privacy",
			path: "/api/posts",
			body: `[{"id": 1, "user_id": 2, "content": "hi", "privacy": "friends"}]`,
			call: func(ctx context.Context, c *api.Client) error {
				_, err := c.ListPosts(ctx, 0, 0)
				return err
			},
		},
		{
			name: "counts missing following",
			path: "/api/users/counts",
			body: `{"followers": 2}`,
			call: func(ctx context.Context, c *api.Client) error {
				_, err := c.FollowCounts(ctx, 0)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			contract, err := api.LoadContract(context.Background(), srv.URL)
			require.NoError(t, err)
			c, err := api.NewClient(srv.URL, api.WithContract(contract))
			require.NoError(t, err)

			err = tt.call(context.Background(), c)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeContractViolation), "got %v", err)
		})
	}
}

func TestContractIgnoresUnknownPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	}))
	defer srv.Close()

	contract, err := api.LoadContract(context.Background(), srv.URL)
	require.NoError(t, err)
	c, err := api.NewClient(srv.URL, api.WithContract(contract))
	require.NoError(t, err)

	assert.NoError(t, c.Follow(context.Background(), 3), "follow is not described by the contract")
}
