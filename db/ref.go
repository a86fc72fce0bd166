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

package db

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"firebase.google.com/tools/internal"
)

// Ref represents a node in the Firebase Realtime Database.
type Ref struct {
	Key  string
	Path string

	segs   []string
	client *Client
}

// Parent returns a reference to the parent of the current node.
//
// If the current reference points to the root of the database, Parent returns nil.
func (r *Ref) Parent() *Ref {
	l := len(r.segs)
	if l > 0 {
		path := strings.Join(r.segs[:l-1], "/")
		return r.client.NewRef(path)
	}
	return nil
}

// Child returns a reference to the specified child node.
func (r *Ref) Child(path string) *Ref {
	fp := fmt.Sprintf("%s/%s", r.Path, path)
	return r.client.NewRef(fp)
}

// Get retrieves the value at the current database location, and stores it in the value pointed to
// by v.
//
// Data deserialization is performed using https://golang.org/pkg/encoding/json/#Unmarshal, and
// therefore v has the same requirements as the json package. Specifically, it must be a pointer,
// and must not be nil.
func (r *Ref) Get(ctx context.Context, v interface{}) error {
	_, err := r.sendAndUnmarshal(ctx, http.MethodGet, nil, v)
	return err
}

// GetShallow performs a shallow read on the current database location.
//
// Shallow reads do not retrieve the child nodes of the current reference.
func (r *Ref) GetShallow(ctx context.Context, v interface{}) error {
	_, err := r.sendAndUnmarshal(ctx, http.MethodGet, nil, v, internal.WithQueryParam("shallow", "true"))
	return err
}

// Set stores the value v in the current database node.
//
// Set uses https://golang.org/pkg/encoding/json/#Marshal to serialize values into JSON. Therefore
// v has the same requirements as the json package. Values like functions and channels cannot be
// saved into Realtime Database.
func (r *Ref) Set(ctx context.Context, v interface{}) error {
	_, err := r.sendAndUnmarshal(ctx, http.MethodPut, internal.NewJSONEntity(v), nil,
		internal.WithQueryParam("print", "silent"))
	return err
}

// Update modifies the specified child keys of the current location to the provided values.
func (r *Ref) Update(ctx context.Context, v map[string]interface{}) error {
	if len(v) == 0 {
		return fmt.Errorf("value argument must be a non-empty map")
	}
	_, err := r.sendAndUnmarshal(ctx, http.MethodPatch, internal.NewJSONEntity(v), nil,
		internal.WithQueryParam("print", "silent"))
	return err
}

// Delete removes this node from the database.
//
// Deleting a very large node in a single request may be rejected by the server. Use Remover to
// delete subtrees of unknown size.
func (r *Ref) Delete(ctx context.Context) error {
	_, err := r.sendAndUnmarshal(ctx, http.MethodDelete, nil, nil,
		internal.WithQueryParam("print", "silent"))
	return err
}

func (r *Ref) sendAndUnmarshal(
	ctx context.Context,
	method string,
	body internal.HTTPEntity,
	v interface{},
	opts ...internal.HTTPOption) (*internal.Response, error) {

	resp, err := r.client.send(ctx, method, r.Path, body, opts...)
	if err != nil {
		return nil, err
	}
	if err := checkSuccess(resp); err != nil {
		return nil, err
	}
	if v != nil {
		if err := resp.Unmarshal(resp.Status, v); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func checkSuccess(resp *internal.Response) error {
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		return handleRTDBError(resp)
	}
	return nil
}
