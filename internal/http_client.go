// Copyright 2017 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/transport"
)

var clock Clock = &SystemClock{}

// Clock is used to obtain the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current system time.
type SystemClock struct{}

// Now returns the current system time by calling time.Now().
func (s *SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock can be used to mock current time during tests.
type MockClock struct {
	Timestamp time.Time
}

// Now returns the timestamp set in the MockClock.
func (m *MockClock) Now() time.Time {
	return m.Timestamp
}

// RetryConfig specifies how the HTTPClient should retry failing HTTP requests.
//
// A request is never retried more than MaxRetries times. If CheckForRetry is nil, all network
// errors, and all 400+ HTTP status codes are retried. If an HTTP error response contains the
// Retry-After header, it is always respected. Otherwise retries are delayed with exponential
// backoff. Set ExpBackoffFactor to 0 to disable exponential backoff, and retry immediately
// after each error.
type RetryConfig struct {
	MaxRetries       int
	CheckForRetry    RetryCondition
	ExpBackoffFactor float64
	MaxDelay         *time.Duration
}

// RetryCondition determines if an HTTP request should be retried depending on its last outcome.
type RetryCondition func(resp *http.Response, networkErr error) bool

func (rc *RetryConfig) retryEligible(retryAttempts int, resp *http.Response, err error) bool {
	if retryAttempts >= rc.MaxRetries {
		return false
	}
	if rc.CheckForRetry == nil {
		return err != nil || resp.StatusCode >= 400
	}
	return rc.CheckForRetry(resp, err)
}

func (rc *RetryConfig) retryDelay(retryAttempts int, resp *http.Response) time.Duration {
	serverRecommendedDelay := parseRetryAfterHeader(resp)
	clientEstimatedDelay := estimateDelayForAttempt(retryAttempts, rc.ExpBackoffFactor)
	delay := clientEstimatedDelay
	if serverRecommendedDelay > clientEstimatedDelay {
		delay = serverRecommendedDelay
	}
	if rc.MaxDelay != nil && delay > *rc.MaxDelay {
		delay = *rc.MaxDelay
	}
	return delay
}

func parseRetryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	retryAfterHeader := resp.Header.Get("retry-after")
	if retryAfterHeader == "" {
		return 0
	}
	delayInSeconds, err := strconv.ParseInt(retryAfterHeader, 10, 64)
	if err != nil {
		timestamp, err := http.ParseTime(retryAfterHeader)
		if err == nil {
			return timestamp.Sub(clock.Now())
		}
	}
	return time.Duration(delayInSeconds) * time.Second
}

func estimateDelayForAttempt(retryAttempts int, factor float64) time.Duration {
	if retryAttempts == 0 {
		return 0
	}
	delayInSeconds := int64(math.Pow(2, float64(retryAttempts)) * factor)
	return time.Duration(delayInSeconds) * time.Second
}

func defaultRetryPolicy(resp *http.Response, networkErr error) bool {
	return networkErr != nil || resp.StatusCode == http.StatusInternalServerError ||
		resp.StatusCode == http.StatusServiceUnavailable
}

// DefaultRetryConfig retries HTTP requests on all low-level network errors, as well as HTTP 500
// and 503 responses. It retries up to 4 times with exponential backoff, never waiting more than
// two minutes between attempts.
func DefaultRetryConfig() *RetryConfig {
	maxDelay := 2 * time.Minute
	return &RetryConfig{
		MaxRetries:       4,
		CheckForRetry:    defaultRetryPolicy,
		ExpBackoffFactor: 0.5,
		MaxDelay:         &maxDelay,
	}
}

// CreateErrFn is a function that creates an error from a given Response.
type CreateErrFn func(r *Response) error

// HTTPClient is a convenient API to make HTTP calls.
//
// This API handles some of the repetitive tasks such as entity serialization and deserialization
// involved in making HTTP calls. It provides a convenient mechanism to set headers and query
// parameters on outgoing requests, while enforcing that an explicit context is used per request.
// Responses returned by HTTPClient can be easily parsed as JSON, and provide a simple mechanism to
// configure retries.
type HTTPClient struct {
	Client      *http.Client
	RetryConfig *RetryConfig
	CreateErrFn CreateErrFn
	Opts        []HTTPOption
}

// NewHTTPClient creates a new HTTPClient using the provided client options and the default
// RetryConfig.
//
// NewHTTPClient returns the created HTTPClient along with the default service endpoint extracted
// from the options.
func NewHTTPClient(ctx context.Context, opts ...option.ClientOption) (*HTTPClient, string, error) {
	hc, endpoint, err := transport.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, "", err
	}
	client := WithDefaultRetryConfig(hc)
	return client, endpoint, nil
}

// WithDefaultRetryConfig creates a new HTTPClient using the provided client and the default
// RetryConfig.
func WithDefaultRetryConfig(hc *http.Client) *HTTPClient {
	return &HTTPClient{
		Client:      hc,
		RetryConfig: DefaultRetryConfig(),
	}
}

// Do executes the given Request, and returns a Response.
//
// If a RetryConfig is specified on the client, Do attempts to retry failing requests. Do does not
// check the HTTP status of the final response; see DoAndUnmarshal for that.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	var result *attemptResult
	var err error
	for retries := 0; ; retries++ {
		result, err = c.attempt(ctx, req, retries)
		if err != nil {
			return nil, err
		}
		if !result.Retry {
			break
		}
		if err = result.waitForRetry(ctx); err != nil {
			return nil, err
		}
	}
	return result.handleResponse()
}

// DoAndUnmarshal executes the given Request, and unmarshals the JSON response payload into v.
//
// Responses outside the 2xx range are converted into errors with CreateErrFn, or
// NewFirebaseError when CreateErrFn is not set. If v is nil, the response payload is ignored.
func (c *HTTPClient) DoAndUnmarshal(ctx context.Context, req *Request, v interface{}) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		return nil, c.newError(resp)
	}
	if v != nil {
		if err := json.Unmarshal(resp.Body, v); err != nil {
			return nil, fmt.Errorf("error while parsing response: %w", err)
		}
	}
	return resp, nil
}

func (c *HTTPClient) newError(resp *Response) error {
	if c.CreateErrFn != nil {
		if err := c.CreateErrFn(resp); err != nil {
			return err
		}
	}
	return NewFirebaseError(resp)
}

func (c *HTTPClient) attempt(ctx context.Context, req *Request, retries int) (*attemptResult, error) {
	hr, err := req.buildHTTPRequest(c.Opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(hr.WithContext(ctx))
	result := &attemptResult{}
	if err != nil {
		result.Err = err
	} else {
		// Read the response body here forcing any I/O errors to occur so that retry logic will
		// cover them as well.
		ir, err := newResponse(resp)
		result.Resp = ir
		result.Err = err
	}

	// If a RetryConfig is available, always consult it to determine if the request should be
	// retried or not. Even if there was a network error, we may not want to retry the request
	// based on the RetryConfig that is in effect.
	if c.RetryConfig != nil && ctx.Err() == nil {
		delay, retry := c.retryDelay(retries, resp, result.Err)
		result.RetryAfter = delay
		result.Retry = retry
	}
	return result, nil
}

func (c *HTTPClient) retryDelay(retries int, resp *http.Response, err error) (time.Duration, bool) {
	if !c.RetryConfig.retryEligible(retries, resp, err) {
		return 0, false
	}
	return c.RetryConfig.retryDelay(retries, resp), true
}

type attemptResult struct {
	Resp       *Response
	Err        error
	Retry      bool
	RetryAfter time.Duration
}

func (r *attemptResult) waitForRetry(ctx context.Context) error {
	if r.RetryAfter > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(r.RetryAfter):
		}
	}
	return ctx.Err()
}

func (r *attemptResult) handleResponse() (*Response, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Resp, nil
}

// Request contains all the parameters required to construct an outgoing HTTP request.
type Request struct {
	Method string
	URL    string
	Body   HTTPEntity
	Opts   []HTTPOption
}

func (r *Request) buildHTTPRequest(opts []HTTPOption) (*http.Request, error) {
	var data io.Reader
	if r.Body != nil {
		b, err := r.Body.Bytes()
		if err != nil {
			return nil, err
		}
		data = bytes.NewBuffer(b)
		opts = append(opts, WithHeader("Content-Type", r.Body.Mime()))
	}

	req, err := http.NewRequest(r.Method, r.URL, data)
	if err != nil {
		return nil, err
	}

	opts = append(opts, r.Opts...)
	for _, o := range opts {
		o(req)
	}
	return req, nil
}

// HTTPEntity represents a payload that can be included in an outgoing HTTP request.
type HTTPEntity interface {
	Bytes() ([]byte, error)
	Mime() string
}

type jsonEntity struct {
	Val interface{}
}

// NewJSONEntity creates a new HTTPEntity that will be serialized into JSON.
func NewJSONEntity(v interface{}) HTTPEntity {
	return &jsonEntity{Val: v}
}

func (e *jsonEntity) Bytes() ([]byte, error) {
	return json.Marshal(e.Val)
}

func (e *jsonEntity) Mime() string {
	return "application/json"
}

// Response contains information extracted from an HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	resp   *http.Response
}

func newResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status: resp.StatusCode,
		Body:   b,
		Header: resp.Header,
		resp:   resp,
	}, nil
}

// LowLevelResponse returns the underlying http.Response.
func (r *Response) LowLevelResponse() *http.Response {
	return r.resp
}

// CheckStatus checks whether the Response status code has the given HTTP status code.
//
// Returns a FirebaseError if the status code does not match.
func (r *Response) CheckStatus(want int) error {
	if r.Status == want {
		return nil
	}
	return NewFirebaseError(r)
}

// Unmarshal checks if the Response has the given HTTP status code, and if so unmarshals the
// response body into the variable pointed by v.
//
// Unmarshal uses https://golang.org/pkg/encoding/json/#Unmarshal internally, and hence v has the
// same requirements as the json package.
func (r *Response) Unmarshal(want int, v interface{}) error {
	if err := r.CheckStatus(want); err != nil {
		return err
	}
	return json.Unmarshal(r.Body, v)
}

// HTTPOption is an additional parameter that can be specified to customize an outgoing request.
type HTTPOption func(*http.Request)

// WithHeader creates an HTTPOption that will set an HTTP header on the request.
func WithHeader(key, value string) HTTPOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQueryParam creates an HTTPOption that will set a query parameter on the request.
func WithQueryParam(key, value string) HTTPOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		q.Add(key, value)
		r.URL.RawQuery = q.Encode()
	}
}

// WithQueryParams creates an HTTPOption that will set all the entries of qp as query parameters
// on the request.
func WithQueryParams(qp map[string]string) HTTPOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range qp {
			q.Add(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}
