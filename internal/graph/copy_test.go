package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/drives/abcdef0123456789/items/src/copy", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"parentReference":{"driveId":"abcdef0123456789","id":"dest"}}`, string(body))

		w.Header().Set("Location", "https://monitor.example/op/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	mon, err := client.CopyItem(context.Background(), testDrive, "src", "dest", "")
	require.NoError(t, err)
	assert.Equal(t, "https://monitor.example/op/1", mon.URL)
}

func TestCopyItem_MissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CopyItem(context.Background(), testDrive, "src", "dest", "")
	require.Error(t, err)
}

func TestCopyItem_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CopyItem(context.Background(), testDrive, "src", "dest", "")
	assert.ErrorIs(t, err, ErrConflict)
}
