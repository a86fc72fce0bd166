// Copyright 2026 Google Inc. All Rights Reserved.
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

package db

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"firebase.google.com/tools/internal"
)

// NodeSize classifies a database node by whether it can be removed in a single request.
type NodeSize int

const (
	// Small nodes can be deleted with a single request.
	Small NodeSize = iota
	// Large nodes must be deleted child by child.
	Large
	// Empty nodes hold no data.
	Empty
)

func (s NodeSize) String() string {
	switch s {
	case Small:
		return "small"
	case Large:
		return "large"
	case Empty:
		return "empty"
	default:
		return "NodeSize(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	prefetchTimeout = "100ms"

	// ListLimit is the maximum number of child keys fetched for a single node.
	ListLimit = 50000
)

// Remote is the set of database operations needed to delete a subtree.
type Remote interface {
	// DeletePath deletes the node at path. It reports whether the node was deleted.
	DeletePath(ctx context.Context, path string) (bool, error)

	// PrefetchTest classifies the node at path.
	PrefetchTest(ctx context.Context, path string) (NodeSize, error)

	// ListPath returns the keys of the immediate children of the node at path.
	ListPath(ctx context.Context, path string) ([]string, error)
}

// HTTPRemote implements Remote against the Realtime Database REST API.
type HTTPRemote struct {
	client *Client
}

// DeletePath issues a DELETE request for the node at path.
func (r *HTTPRemote) DeletePath(ctx context.Context, path string) (bool, error) {
	resp, err := r.client.send(ctx, http.MethodDelete, path, nil,
		internal.WithQueryParam("print", "silent"))
	if err != nil {
		return false, err
	}
	if err := checkSuccess(resp); err != nil {
		return false, err
	}
	r.client.log.WithField("path", path).Debug("deleted path")
	return true, nil
}

// PrefetchTest reads the node at path with a short server-side timeout. A node that cannot be
// read within the timeout, or is too large to be returned at all, is Large.
func (r *HTTPRemote) PrefetchTest(ctx context.Context, path string) (NodeSize, error) {
	resp, err := r.client.send(ctx, http.MethodGet, path, nil,
		internal.WithQueryParam("timeout", prefetchTimeout))
	if err != nil {
		return Small, err
	}
	switch resp.Status {
	case http.StatusOK:
		if isNull(resp.Body) {
			return Empty, nil
		}
		return Small, nil
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return Large, nil
	default:
		return Small, handleRTDBError(resp)
	}
}

// ListPath performs a shallow read of the node at path, and returns up to ListLimit child keys
// in sorted order. Leaf values and missing nodes have no children.
func (r *HTTPRemote) ListPath(ctx context.Context, path string) ([]string, error) {
	resp, err := r.client.send(ctx, http.MethodGet, path, nil,
		internal.WithQueryParams(map[string]string{
			"shallow":      "true",
			"limitToFirst": strconv.Itoa(ListLimit),
		}))
	if err != nil {
		return nil, err
	}
	if err := checkSuccess(resp); err != nil {
		return nil, err
	}
	if isNull(resp.Body) {
		return nil, nil
	}

	var children map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &children); err != nil {
		var primitive interface{}
		if json.Unmarshal(resp.Body, &primitive) == nil {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func isNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
