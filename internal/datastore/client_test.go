package datastore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetteClient_BatchInsert(t *testing.T) {
	var gotPath, gotAuth, gotPK string
	var gotRows []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		gotPK = r.URL.Query().Get("pk")
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRows))
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewDatasetteClient(ts.URL, "testtoken")
	require.NoError(t, client.Connect())
	require.NoError(t, client.CreateTable(resultsSchema))

	rows := []map[string]any{{"session_id": "abc", "title": "Dune"}}
	require.NoError(t, client.BatchInsert(DefaultDatabase, ResultsTable, rows))

	assert.Equal(t, "/-/insert/shelfscout/search_results", gotPath)
	assert.Equal(t, "session_id", gotPK)
	assert.Equal(t, "Bearer testtoken", gotAuth)
	require.Len(t, gotRows, 1)
	assert.Equal(t, "Dune", gotRows[0]["title"])
}

func TestDatasetteClient_BatchInsertAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "forbidden"})
	}))
	defer ts.Close()

	client := NewDatasetteClient(ts.URL, "")
	err := client.BatchInsert(DefaultDatabase, "t", []map[string]any{{"foo": "bar"}})
	require.ErrorContains(t, err, "forbidden")
	require.ErrorContains(t, err, "403")
}

func TestDatasetteClient_ConnectValidatesURL(t *testing.T) {
	require.Error(t, NewDatasetteClient("ftp://example.com", "").Connect())
	require.NoError(t, NewDatasetteClient("https://example.com/db", "").Connect())
}

func TestDatasetteClient_EmptyBatch(t *testing.T) {
	client := NewDatasetteClient("http://127.0.0.1:1", "")
	require.NoError(t, client.BatchInsert(DefaultDatabase, "t", nil))
}
