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

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"firebase.google.com/tools/auth/hash"
	"firebase.google.com/tools/internal"
)

// MaxImportUsers is the largest number of accounts accepted in a single upload request.
const MaxImportUsers = 1000

// UserToImport represents a user account that can be bulk imported into Firebase Auth.
//
// PasswordHash and Salt hold base64 encoded values.
type UserToImport struct {
	LocalID          string              `json:"localId,omitempty"`
	Email            string              `json:"email,omitempty"`
	EmailVerified    bool                `json:"emailVerified,omitempty"`
	PasswordHash     string              `json:"passwordHash,omitempty"`
	Salt             string              `json:"salt,omitempty"`
	DisplayName      string              `json:"displayName,omitempty"`
	PhotoURL         string              `json:"photoUrl,omitempty"`
	CreatedAt        json.Number         `json:"createdAt,omitempty"`
	LastLoginAt      json.Number         `json:"lastLoginAt,omitempty"`
	PhoneNumber      string              `json:"phoneNumber,omitempty"`
	Disabled         bool                `json:"disabled,omitempty"`
	CustomAttributes string              `json:"customAttributes,omitempty"`
	ProviderUserInfo []*ProviderUserInfo `json:"providerUserInfo,omitempty"`
}

// ProviderUserInfo links an imported account to a federated identity provider.
type ProviderUserInfo struct {
	ProviderID  string `json:"providerId"`
	RawID       string `json:"rawId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// UserImportResult represents the result of an import.
type UserImportResult struct {
	SuccessCount int
	FailureCount int
	Errors       []*ErrorInfo
}

// ErrorInfo represents an error encountered while importing a single user account.
//
// Batch and Index locate the failed account in the batches passed to SerialImportUsers.
type ErrorInfo struct {
	Batch  int
	Index  int
	UID    string
	Reason string
}

func (e *ErrorInfo) String() string {
	return fmt.Sprintf("batch %d, user %d (%s): %s", e.Batch, e.Index, e.UID, e.Reason)
}

// Batches splits users into consecutive batches of at most size accounts. Sizes outside
// (0, MaxImportUsers] are treated as MaxImportUsers.
func Batches(users []*UserToImport, size int) [][]*UserToImport {
	if size <= 0 || size > MaxImportUsers {
		size = MaxImportUsers
	}
	var batches [][]*UserToImport
	for len(users) > 0 {
		n := size
		if len(users) < n {
			n = len(users)
		}
		batches = append(batches, users[:n])
		users = users[n:]
	}
	return batches
}

// SerialImportUsers uploads batches[index:] one batch at a time, in order.
//
// Accounts rejected by the server inside a successful response are logged and collected in
// the result, and do not stop the import. Any other failure stops the import and is returned
// along with the result of the batches uploaded so far.
func (c *Client) SerialImportUsers(
	ctx context.Context, conf hash.Config, batches [][]*UserToImport, index int) (*UserImportResult, error) {

	if index < 0 || index > len(batches) {
		return nil, fmt.Errorf("batch index %d out of range [0, %d]", index, len(batches))
	}

	result := &UserImportResult{}
	for i := index; i < len(batches); i++ {
		br, err := c.ImportUsers(ctx, conf, batches[i])
		if err != nil {
			return result, fmt.Errorf("importing batch %d: %w", i, err)
		}
		result.SuccessCount += br.SuccessCount
		result.FailureCount += br.FailureCount
		for _, e := range br.Errors {
			e.Batch = i
			result.Errors = append(result.Errors, e)
		}
	}
	return result, nil
}

type uploadAccountRequest struct {
	Users           []*UserToImport `json:"users"`
	TargetProjectID string          `json:"targetProjectId"`
}

type uploadAccountResponse struct {
	Error []struct {
		Index   int    `json:"index"`
		Message string `json:"message"`
	} `json:"error"`
}

// ImportUsers uploads a single batch of accounts, hashed with the algorithm described by conf.
func (c *Client) ImportUsers(ctx context.Context, conf hash.Config, users []*UserToImport) (*UserImportResult, error) {
	if len(users) == 0 {
		return nil, errors.New("users list must not be empty")
	}
	if len(users) > MaxImportUsers {
		return nil, fmt.Errorf("users list must not contain more than %d elements", MaxImportUsers)
	}
	if len(conf) == 0 {
		for _, u := range users {
			if u.PasswordHash != "" {
				return nil, errors.New("hash algorithm is required to import users with passwords")
			}
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.log.Infof("Starting importing %d account(s).", len(users))
	body, err := newUploadBody(c.projectID, conf, users)
	if err != nil {
		return nil, err
	}
	req := &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/uploadAccount", c.baseURL),
		Body:   internal.NewJSONEntity(body),
	}
	var resp uploadAccountResponse
	if _, err := c.hc.DoAndUnmarshal(ctx, req, &resp); err != nil {
		return nil, err
	}

	result := &UserImportResult{
		SuccessCount: len(users) - len(resp.Error),
		FailureCount: len(resp.Error),
	}
	if len(resp.Error) == 0 {
		c.log.Info("Imported successfully.")
		return result, nil
	}

	c.log.Warn("Encountered problems while importing accounts.")
	for _, e := range resp.Error {
		info := &ErrorInfo{Index: e.Index, Reason: e.Message}
		if e.Index >= 0 && e.Index < len(users) {
			info.UID = users[e.Index].LocalID
		}
		c.log.WithFields(logrus.Fields{
			"index": info.Index,
			"uid":   info.UID,
		}).Warn(info.Reason)
		result.Errors = append(result.Errors, info)
	}
	return result, nil
}

// newUploadBody merges the hash parameters into the request payload. Accounts are copied so
// that converting their hashes to web-safe base64 leaves the caller's values untouched.
func newUploadBody(projectID string, conf hash.Config, users []*UserToImport) (map[string]interface{}, error) {
	converted := make([]*UserToImport, len(users))
	for i, u := range users {
		cu := *u
		cu.PasswordHash = toWebSafeBase64(u.PasswordHash)
		cu.Salt = toWebSafeBase64(u.Salt)
		converted[i] = &cu
	}

	b, err := json.Marshal(&uploadAccountRequest{
		Users:           converted,
		TargetProjectID: projectID,
	})
	if err != nil {
		return nil, err
	}
	var body map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	for k, v := range conf {
		body[k] = v
	}
	return body, nil
}

func toWebSafeBase64(s string) string {
	return strings.NewReplacer("/", "_", "+", "-").Replace(s)
}
