package release

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	status   int
	received []Request
	headers  []http.Header
	vars     map[string]string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/repos/{owner}/{repo}/releases", func(w http.ResponseWriter, req *http.Request) {
		var body Request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.received = append(f.received, body)
		f.headers = append(f.headers, req.Header.Clone())
		f.vars = mux.Vars(req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		if f.status == http.StatusCreated {
			_ = json.NewEncoder(w).Encode(Release{ID: 7, TagName: body.TagName, HTMLURL: "https://example.test/r/" + body.TagName})
			return
		}
		_, _ = w.Write([]byte(`{"message":"Validation Failed"}`))
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreate(t *testing.T) {
	api := &fakeAPI{status: http.StatusCreated}
	srv := api.server(t)

	c := NewClient(zerolog.Nop(), srv.URL, "s3cret")
	rel, err := c.Create(context.Background(), "r42", "notes\nline two\n")
	require.NoError(t, err)

	assert.Equal(t, int64(7), rel.ID)
	assert.Equal(t, "https://example.test/r/r42", rel.HTMLURL)

	require.Len(t, api.received, 1)
	assert.Equal(t, Request{TagName: "r42", Name: "r42", Body: "notes\nline two\n"}, api.received[0])
	assert.Equal(t, "token s3cret", api.headers[0].Get("Authorization"))
	assert.Equal(t, map[string]string{"owner": "CMSgov", "repo": "bcda-app"}, api.vars)
}

func TestCreateUnexpectedStatus(t *testing.T) {
	tests := []struct {
		description string
		status      int
	}{
		{"validation failed", http.StatusUnprocessableEntity},
		{"ok is not created", http.StatusOK},
		{"unauthorized", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			api := &fakeAPI{status: tc.status}
			srv := api.server(t)

			c := NewClient(zerolog.Nop(), srv.URL, "token")
			c.Repo = "acme/tools"
			_, err := c.Create(context.Background(), "r1", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnexpectedStatus))
			assert.Len(t, api.received, 1)
			assert.Equal(t, "acme", api.vars["owner"])
			assert.Contains(t, err.Error(), "Validation Failed")
		})
	}
}

func TestCreateValidation(t *testing.T) {
	c := NewClient(zerolog.Nop(), "http://127.0.0.1:0", "token")

	_, err := c.Create(context.Background(), "", "notes")
	assert.Error(t, err)

	c.Repo = "no-owner"
	_, err = c.Create(context.Background(), "r1", "notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid repository")
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(zerolog.Nop(), "", "token")
	assert.Equal(t, DefaultBaseURI, c.BaseURI)
	assert.Equal(t, DefaultRepo, c.Repo)
}
