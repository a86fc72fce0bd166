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

// Package auth contains functions for importing user accounts into Firebase Authentication.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"firebase.google.com/tools/internal"
	"firebase.google.com/tools/internal/logging"
)

const (
	idToolkitV3Endpoint = "https://www.googleapis.com/identitytoolkit/v3/relyingparty"
	emulatorHostEnvVar  = "FIREBASE_AUTH_EMULATOR_HOST"
	emulatorToken       = "owner"
)

// Client imports user accounts into a Firebase project.
type Client struct {
	hc        *internal.HTTPClient
	baseURL   string
	projectID string
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// NewClient creates a new instance of the account import client.
//
// When the FIREBASE_AUTH_EMULATOR_HOST environment variable is set, the client talks to the
// Auth emulator at that host instead of the production service.
func NewClient(ctx context.Context, conf *internal.AuthConfig) (*Client, error) {
	if conf.ProjectID == "" {
		return nil, errors.New("project id is required to import users")
	}

	opts := append([]option.ClientOption{}, conf.Opts...)
	baseURL := idToolkitV3Endpoint
	if host := os.Getenv(emulatorHostEnvVar); host != "" {
		baseURL = fmt.Sprintf("http://%s/www.googleapis.com/identitytoolkit/v3/relyingparty", host)
		opts = append(opts, option.WithTokenSource(&internal.MockTokenSource{AccessToken: emulatorToken}))
	}

	hc, _, err := internal.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = handleHTTPError
	if conf.Version != "" {
		hc.Opts = []internal.HTTPOption{
			internal.WithHeader("X-Client-Version", fmt.Sprintf("Go/Tools/%s", conf.Version)),
		}
	}

	return &Client{
		hc:        hc,
		baseURL:   baseURL,
		projectID: conf.ProjectID,
		limiter:   rateLimiter(conf.RequestsPerSecond),
		log:       logging.OrDiscard(conf.Logger),
	}, nil
}

// WithRateLimit returns a copy of the client that sends at most rps import requests per second.
// A non-positive rps removes the limit.
func (c *Client) WithRateLimit(rps float64) *Client {
	cp := *c
	cp.limiter = rateLimiter(rps)
	return &cp
}

func handleHTTPError(resp *internal.Response) error {
	return internal.NewFirebaseError(resp)
}

func rateLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
