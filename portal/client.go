// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// package portal implements an authenticated HTTP client for ENCODE-style
// metadata portals. All record payloads pass through as generic JSON objects
// so the client stays agnostic about individual record schemas.
package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/stanfordbioinformatics/encsubmit/logging"
)

// environment variables holding the submitter's portal API keys
const (
	ApiKeyEnvVar    = "DCC_API_KEY"
	SecretKeyEnvVar = "DCC_SECRET_KEY"
)

// record frames that can be requested from the portal (frame=object returns
// the record as stored, frame=edit returns only the writable properties)
const (
	FrameObject = "object"
	FrameEdit   = "edit"
)

// temporary AWS credentials minted by the portal for uploading a file
// record's data to its designated bucket location
type UploadCredentials struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token"`
	UploadUrl    string `json:"upload_url"`
}

// a client that communicates with a single portal instance
type Client struct {
	// base URL of the portal instance (e.g. https://www.encodeproject.org)
	BaseUrl string
	// HTTP client used to perform requests
	Client http.Client
	// portal API keys (omitted from requests when empty, which restricts
	// the client to publicly visible records)
	ApiKey, SecretKey string
	// datastore reads go to ("database" for the authoritative store, empty
	// for the portal's default search index)
	Datastore string

	logger *logging.Logger
}

// NewClient creates a client for the portal instance at the given base URL.
// API keys are read from the DCC_API_KEY and DCC_SECRET_KEY environment
// variables; without them the client can only read public records.
func NewClient(baseUrl string, timeout time.Duration, logger *logging.Logger) *Client {
	c := &Client{
		BaseUrl:   strings.TrimSuffix(baseUrl, "/"),
		Client:    secureHttpClient(timeout),
		ApiKey:    os.Getenv(ApiKeyEnvVar),
		SecretKey: os.Getenv(SecretKeyEnvVar),
		Datastore: "database",
		logger:    logger,
	}
	if c.ApiKey == "" {
		c.logger.Debugf("No portal API keys found in the environment; proceeding unauthenticated.")
	}
	return c
}

// performs a request against the given resource with an optional JSON body,
// returning the response and any error encountered
func (c *Client) do(method, resource string, values url.Values, body any) (*http.Response, error) {
	u := fmt.Sprintf("%s/%s", c.BaseUrl, strings.TrimPrefix(resource, "/"))
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	c.logger.Debugf("%s: %s", method, u)

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ApiKey != "" {
		req.SetBasicAuth(c.ApiKey, c.SecretKey)
	}
	return c.Client.Do(req)
}

// reads a response body and maps portal error statuses to our error types
// (id identifies the record involved, for error reporting)
func (c *Client) readResponse(resp *http.Response, method, id string) (map[string]any, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var result map[string]any
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		return result, nil
	case http.StatusForbidden:
		return nil, &ForbiddenError{Method: method, Id: id}
	case http.StatusNotFound:
		return nil, &NotFoundError{Id: id}
	case http.StatusConflict:
		return nil, &ConflictError{Id: id}
	default:
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Url:        fmt.Sprintf("%s/%s", c.BaseUrl, strings.TrimPrefix(id, "/")),
			Detail:     errorDetail(data),
		}
	}
}

// extracts a human-readable detail string from a portal error response
func errorDetail(data []byte) string {
	var body struct {
		Description string `json:"description"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Description != "" {
			return body.Description
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	detail := string(data)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}

// extracts the first record from a portal mutation response, which wraps its
// results in an @graph envelope
func unwrapGraph(result map[string]any) (map[string]any, error) {
	graph, ok := result["@graph"].([]any)
	if !ok || len(graph) == 0 {
		return nil, fmt.Errorf("The portal response has no @graph envelope.")
	}
	record, ok := graph[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("The portal's @graph envelope holds no record.")
	}
	return record, nil
}

// Get fetches the record with the given identifier, which may be any portal
// identifier (accession, UUID, alias, @id, or md5sum for file records). An
// empty frame fetches the default object frame.
func (c *Client) Get(id, frame string) (map[string]any, error) {
	values := url.Values{}
	values.Add("format", "json")
	if c.Datastore != "" {
		values.Add("datastore", c.Datastore)
	}
	if frame != "" {
		values.Add("frame", frame)
	}
	resp, err := c.do(http.MethodGet, strings.Trim(id, "/"), values, nil)
	if err != nil {
		return nil, err
	}
	return c.readResponse(resp, http.MethodGet, id)
}

// Search runs a search query against the portal with the given parameters,
// returning the matching records. An empty result set is not an error.
func (c *Client) Search(params url.Values) ([]map[string]any, error) {
	values := url.Values{}
	for key, vals := range params {
		for _, val := range vals {
			values.Add(key, val)
		}
	}
	values.Set("format", "json")
	if values.Get("limit") == "" {
		values.Set("limit", "all")
	}
	resp, err := c.do(http.MethodGet, "search/", values, nil)
	if err != nil {
		return nil, err
	}
	result, err := c.readResponse(resp, http.MethodGet, "search/")
	if err != nil {
		// the portal reports an empty result set as a 404
		if _, notFound := err.(*NotFoundError); notFound {
			return []map[string]any{}, nil
		}
		return nil, err
	}
	graph, _ := result["@graph"].([]any)
	records := make([]map[string]any, 0, len(graph))
	for _, item := range graph {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// Post creates a new record in the given collection (e.g. "experiment"),
// returning the record as created by the portal.
func (c *Client) Post(collection string, record map[string]any) (map[string]any, error) {
	id := collection
	switch aliases := record["aliases"].(type) {
	case []string:
		if len(aliases) > 0 {
			id = aliases[0]
		}
	case []any:
		if len(aliases) > 0 {
			if alias, ok := aliases[0].(string); ok {
				id = alias
			}
		}
	}
	resp, err := c.do(http.MethodPost, strings.Trim(collection, "/"), nil, record)
	if err != nil {
		return nil, err
	}
	result, err := c.readResponse(resp, http.MethodPost, id)
	if err != nil {
		return nil, err
	}
	return unwrapGraph(result)
}

// Patch applies the given properties to the identified record, returning the
// record as it stands after the edit.
func (c *Client) Patch(id string, properties map[string]any) (map[string]any, error) {
	resp, err := c.do(http.MethodPatch, strings.Trim(id, "/"), nil, properties)
	if err != nil {
		return nil, err
	}
	result, err := c.readResponse(resp, http.MethodPatch, id)
	if err != nil {
		return nil, err
	}
	return unwrapGraph(result)
}

// Put replaces the identified record wholesale with the given properties.
// Unlike Patch, properties absent from the given record are dropped.
func (c *Client) Put(id string, record map[string]any) (map[string]any, error) {
	resp, err := c.do(http.MethodPut, strings.Trim(id, "/"), nil, record)
	if err != nil {
		return nil, err
	}
	result, err := c.readResponse(resp, http.MethodPut, id)
	if err != nil {
		return nil, err
	}
	return unwrapGraph(result)
}

// MintUploadCredentials asks the portal for fresh AWS credentials scoped to
// the given file record's upload location. The portal refuses to mint
// credentials for files whose data is already validated, which surfaces here
// as a ForbiddenError.
func (c *Client) MintUploadCredentials(fileId string) (*UploadCredentials, error) {
	resource := fmt.Sprintf("files/%s/@@upload", strings.Trim(fileId, "/"))
	resp, err := c.do(http.MethodPost, resource, nil, map[string]any{})
	if err != nil {
		return nil, err
	}
	result, err := c.readResponse(resp, http.MethodPost, fileId)
	if err != nil {
		return nil, err
	}
	record, err := unwrapGraph(result)
	if err != nil {
		return nil, err
	}
	credsMap, ok := record["upload_credentials"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("The portal minted no upload credentials for %s.", fileId)
	}
	data, err := json.Marshal(credsMap)
	if err != nil {
		return nil, err
	}
	var creds UploadCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
