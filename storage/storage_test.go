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

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/api/option"

	"firebase.google.com/tools/internal"
)

var testOpts = []option.ClientOption{
	option.WithoutAuthentication(),
}

func newTestClient(t *testing.T, bucket string) *Client {
	client, err := NewClient(context.Background(), &internal.StorageConfig{
		Opts:   testOpts,
		Bucket: bucket,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNoBucketName(t *testing.T) {
	client := newTestClient(t, "")
	if _, err := client.DefaultBucket(); err == nil {
		t.Errorf("DefaultBucket() = nil; want error")
	}
}

func TestEmptyBucketName(t *testing.T) {
	client := newTestClient(t, "")
	if _, err := client.Bucket(""); err == nil {
		t.Errorf("Bucket('') = nil; want error")
	}
}

func TestDefaultBucket(t *testing.T) {
	client := newTestClient(t, "bucket.name")
	bucket, err := client.DefaultBucket()
	if bucket == nil || err != nil {
		t.Errorf("DefaultBucket() = (%v, %v); want: (bucket, nil)", bucket, err)
	}
}

func TestBucket(t *testing.T) {
	client := newTestClient(t, "")
	bucket, err := client.Bucket("bucket.name")
	if bucket == nil || err != nil {
		t.Errorf("Bucket() = (%v, %v); want: (bucket, nil)", bucket, err)
	}
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		url    string
		bucket string
		object string
	}{
		{"gs://bucket/accounts.json", "bucket", "accounts.json"},
		{"gs://my.bucket/exports/2026/accounts.csv", "my.bucket", "exports/2026/accounts.csv"},
		{"gs:///accounts.json", "", "accounts.json"},
	}
	for _, tc := range cases {
		bucket, object, err := ParseURL(tc.url)
		if err != nil {
			t.Errorf("ParseURL(%q) = %v", tc.url, err)
			continue
		}
		if bucket != tc.bucket || object != tc.object {
			t.Errorf("ParseURL(%q) = (%q, %q); want = (%q, %q)", tc.url, bucket, object, tc.bucket, tc.object)
		}
	}
}

func TestParseURLError(t *testing.T) {
	for _, u := range []string{"", "accounts.json", "s3://bucket/accounts.json", "gs://bucket", "gs://bucket/"} {
		if _, _, err := ParseURL(u); err == nil {
			t.Errorf("ParseURL(%q) = nil; want error", u)
		}
	}
}

func TestOpenLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	if err := os.WriteFile(path, []byte(`{"users": []}`), 0600); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(t, "")
	r, err := client.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"users": []}` {
		t.Errorf("Open() = %q; want = %q", string(b), `{"users": []}`)
	}
}

func TestOpenErrors(t *testing.T) {
	client := newTestClient(t, "")
	cases := []string{
		filepath.Join(t.TempDir(), "missing.json"),
		"gs:///accounts.json",
		"gs://bucket",
	}
	for _, tc := range cases {
		if r, err := client.Open(context.Background(), tc); r != nil || err == nil {
			t.Errorf("Open(%q) = (%v, %v); want = (nil, error)", tc, r, err)
		}
	}
}
