// Copyright 2018 Google Inc. All Rights Reserved.
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

// Package db contains functions for accessing the Firebase Realtime Database, including the
// chunked recursive delete used by the database:remove command.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"firebase.google.com/tools/internal"
	"firebase.google.com/tools/internal/logging"
)

const (
	invalidChars    = "[].#$"
	authVarOverride = "auth_variable_override"
	emulatorToken   = "owner"
)

var hostSuffixes = []string{".firebaseio.com", ".firebasedatabase.app"}

// Client is the interface for the Firebase Realtime Database service.
type Client struct {
	hc           *internal.HTTPClient
	url          string
	namespace    string
	authOverride string
	log          logrus.FieldLogger
}

// NewClient creates a new instance of the Firebase Database Client.
//
// The database URL must either be a production URL (https://<name>.firebaseio.com or
// https://<name>.<region>.firebasedatabase.app), or an emulator URL of the form
// http://<host>:<port>?ns=<name>. Emulator connections authenticate as the database owner.
func NewClient(ctx context.Context, c *internal.DatabaseConfig) (*Client, error) {
	baseURL, ns, emulator, err := parseURL(c.URL)
	if err != nil {
		return nil, err
	}

	var ao []byte
	if c.AuthOverride == nil || len(c.AuthOverride) > 0 {
		ao, err = json.Marshal(c.AuthOverride)
		if err != nil {
			return nil, err
		}
	}

	opts := append([]option.ClientOption{}, c.Opts...)
	if emulator {
		opts = append(opts, option.WithTokenSource(&internal.MockTokenSource{AccessToken: emulatorToken}))
	}
	hc, _, err := internal.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = handleRTDBError
	if c.Version != "" {
		hc.Opts = []internal.HTTPOption{
			internal.WithHeader("X-Client-Version", fmt.Sprintf("Go/Tools/%s", c.Version)),
		}
	}

	return &Client{
		hc:           hc,
		url:          baseURL,
		namespace:    ns,
		authOverride: string(ao),
		log:          logging.OrDiscard(c.Logger),
	}, nil
}

func parseURL(dbURL string) (baseURL, ns string, emulator bool, err error) {
	if dbURL == "" {
		return "", "", false, fmt.Errorf("database url not specified")
	}
	p, err := url.ParseRequestURI(dbURL)
	if err != nil {
		return "", "", false, err
	}
	if p.Scheme == "http" {
		ns = p.Query().Get("ns")
		if ns == "" {
			return "", "", false, fmt.Errorf("emulator database URL must specify the ns query parameter: %q", dbURL)
		}
		return fmt.Sprintf("http://%s", p.Host), ns, true, nil
	}
	if p.Scheme != "https" {
		return "", "", false, fmt.Errorf("invalid database URL (incorrect scheme): %q", dbURL)
	}
	for _, suffix := range hostSuffixes {
		if strings.HasSuffix(p.Host, suffix) {
			return fmt.Sprintf("https://%s", p.Host), "", false, nil
		}
	}
	return "", "", false, fmt.Errorf("invalid database URL (incorrect host): %q", dbURL)
}

// NewRef returns a new database reference representing the node at the specified path.
func (c *Client) NewRef(path string) *Ref {
	segs := parsePath(path)
	key := ""
	if len(segs) > 0 {
		key = segs[len(segs)-1]
	}

	return &Ref{
		Key:    key,
		Path:   "/" + strings.Join(segs, "/"),
		client: c,
		segs:   segs,
	}
}

// URL returns the URL of the database instance, including the namespace of emulator
// databases.
func (c *Client) URL() string {
	if c.namespace != "" {
		return fmt.Sprintf("%s?ns=%s", c.url, c.namespace)
	}
	return c.url
}

// Remote returns the HTTP implementation of the Remote contract used by Remover.
//
// Requests made through the returned Remote are sent once. Retrying them is left to the caller,
// so that a Remover's retry settings are the only retry policy in effect.
func (c *Client) Remote() *HTTPRemote {
	hc := *c.hc
	hc.RetryConfig = nil
	rc := *c
	rc.hc = &hc
	return &HTTPRemote{client: &rc}
}

func (c *Client) send(
	ctx context.Context,
	method, path string,
	body internal.HTTPEntity,
	opts ...internal.HTTPOption) (*internal.Response, error) {

	if strings.ContainsAny(path, invalidChars) {
		return nil, fmt.Errorf("invalid path with illegal characters: %q", path)
	}
	if c.authOverride != "" {
		opts = append(opts, internal.WithQueryParam(authVarOverride, c.authOverride))
	}
	if c.namespace != "" {
		opts = append(opts, internal.WithQueryParam("ns", c.namespace))
	}
	return c.hc.Do(ctx, &internal.Request{
		Method: method,
		URL:    fmt.Sprintf("%s%s.json", c.url, path),
		Body:   body,
		Opts:   opts,
	})
}

func handleRTDBError(resp *internal.Response) error {
	return internal.NewFirebaseError(resp)
}

func parsePath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
