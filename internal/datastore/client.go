package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DatasetteClient writes rows through the datasette-insert plugin API.
type DatasetteClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewDatasetteClient(baseURL, apiToken string) *DatasetteClient {
	return &DatasetteClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Connect only validates the base URL; Datasette has no session to open.
func (c *DatasetteClient) Connect() error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid datasette url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid datasette url %q: scheme must be http or https", c.baseURL)
	}
	return nil
}

// CreateTable is a no-op; the insert API creates tables on first write.
func (c *DatasetteClient) CreateTable(string) error { return nil }

func (c *DatasetteClient) BatchInsert(database string, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid datasette url: %w", err)
	}
	u.Path = path.Join(u.Path, "-/insert", database, table)
	q := u.Query()
	q.Set("pk", "session_id")
	q.Set("replace", "1")
	u.RawQuery = q.Encode()

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post rows to datasette: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error  string   `json:"error"`
			Errors []string `json:"errors"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &apiErr) == nil && (apiErr.Error != "" || len(apiErr.Errors) > 0) {
			if apiErr.Error == "" {
				apiErr.Error = apiErr.Errors[0]
			}
			return fmt.Errorf("datasette insert into %s: %s (status %d)", table, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("datasette insert into %s: status %d", table, resp.StatusCode)
	}
	return nil
}

func (c *DatasetteClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
