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

// Package storage reads account files and other inputs from Google Cloud Storage or the local
// file system.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"

	"firebase.google.com/tools/internal"
)

const gsScheme = "gs"

// Client is the interface for the Google Cloud Storage service.
type Client struct {
	client *storage.Client
	bucket string
}

// NewClient creates a new instance of the Storage Client.
func NewClient(ctx context.Context, c *internal.StorageConfig) (*Client, error) {
	client, err := storage.NewClient(ctx, c.Opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, bucket: c.Bucket}, nil
}

// DefaultBucket returns a handle to the default Cloud Storage bucket of the project.
func (c *Client) DefaultBucket() (*storage.BucketHandle, error) {
	return c.Bucket(c.bucket)
}

// Bucket returns a handle to the specified Cloud Storage bucket.
func (c *Client) Bucket(name string) (*storage.BucketHandle, error) {
	if name == "" {
		return nil, errors.New("bucket name not specified")
	}
	return c.client.Bucket(name), nil
}

// Open returns a reader for location, which is either a gs://bucket/object URL, or a path on
// the local file system. A gs:// URL without a bucket name refers to the default bucket.
func (c *Client) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !IsURL(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	bucket, object, err := ParseURL(location)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		bucket = c.bucket
	}
	bh, err := c.Bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := bh.Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("error while reading %s: %w", location, err)
	}
	return r, nil
}

// Close releases the resources held by the underlying Cloud Storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// IsURL reports whether location is a gs:// URL.
func IsURL(location string) bool {
	return strings.HasPrefix(location, gsScheme+"://")
}

// ParseURL splits a gs://bucket/object URL into its bucket and object names.
func ParseURL(location string) (bucket, object string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != gsScheme {
		return "", "", fmt.Errorf("invalid storage URL (incorrect scheme): %q", location)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if object == "" {
		return "", "", fmt.Errorf("invalid storage URL (no object name): %q", location)
	}
	return u.Host, object, nil
}
