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

package auth

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var allowedUserKeys = map[string]bool{
	"localId":          true,
	"email":            true,
	"emailVerified":    true,
	"passwordHash":     true,
	"salt":             true,
	"displayName":      true,
	"photoUrl":         true,
	"createdAt":        true,
	"lastSignedInAt":   true,
	"providerUserInfo": true,
	"phoneNumber":      true,
	"disabled":         true,
	"customAttributes": true,
}

var allowedProviderKeys = map[string]bool{
	"providerId":  true,
	"rawId":       true,
	"email":       true,
	"displayName": true,
	"photoUrl":    true,
}

// CSV provider groups, in column order.
var csvProviders = []string{"google.com", "facebook.com", "twitter.com", "github.com"}

const csvColumns = 28

// jsonUser is the account layout of the auth:export JSON format.
type jsonUser struct {
	UserToImport
	LastSignedInAt json.Number `json:"lastSignedInAt,omitempty"`
}

// ParseUsersJSON reads an account file in the JSON format written by auth:export:
// {"users": [...]}. All invalid accounts are reported together.
func ParseUsersJSON(r io.Reader) ([]*UserToImport, error) {
	var file struct {
		Users []json.RawMessage `json:"users"`
	}
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("error while parsing account file: %w", err)
	}

	var result *multierror.Error
	users := make([]*UserToImport, 0, len(file.Users))
	for i, raw := range file.Users {
		u, err := parseJSONUser(raw)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("user %d: %w", i, err))
			continue
		}
		users = append(users, u)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return users, nil
}

func parseJSONUser(raw json.RawMessage) (*UserToImport, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if diff := unsupportedKeys(fields, allowedUserKeys); len(diff) > 0 {
		return nil, fmt.Errorf("unsupported keys: %s", strings.Join(diff, ","))
	}

	if p, ok := fields["providerUserInfo"]; ok {
		var providers []map[string]json.RawMessage
		if err := json.Unmarshal(p, &providers); err != nil {
			return nil, fmt.Errorf("invalid providerUserInfo: %w", err)
		}
		for _, pf := range providers {
			var id string
			if raw, ok := pf["providerId"]; ok {
				if err := json.Unmarshal(raw, &id); err != nil {
					return nil, fmt.Errorf("invalid providerId: %w", err)
				}
			}
			if !isSupportedProvider(id) {
				return nil, fmt.Errorf("unsupported providerId: %q", id)
			}
			if diff := unsupportedKeys(pf, allowedProviderKeys); len(diff) > 0 {
				return nil, fmt.Errorf("provider %q has unsupported keys: %s", id, strings.Join(diff, ","))
			}
		}
	}

	var ju jsonUser
	if err := json.Unmarshal(raw, &ju); err != nil {
		return nil, fmt.Errorf("invalid data format: %w", err)
	}
	u := ju.UserToImport
	if ju.LastSignedInAt != "" {
		u.LastLoginAt = ju.LastSignedInAt
	}
	if err := validateHashes(&u); err != nil {
		return nil, fmt.Errorf("invalid data format: %w", err)
	}
	return &u, nil
}

// ParseUsersCSV reads an account file in the CSV format written by auth:export. Each row holds
// 28 columns: the account fields, four provider groups (google.com, facebook.com, twitter.com,
// github.com) of rawId, email, displayName and photoUrl, then createdAt, lastSignedInAt,
// phoneNumber, disabled and customAttributes. Missing trailing columns are treated as empty.
func ParseUsersCSV(r io.Reader) ([]*UserToImport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var result *multierror.Error
	var users []*UserToImport
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error while parsing account file: %w", err)
		}
		u, err := parseCSVUser(rec)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("row %d: %w", row, err))
			continue
		}
		users = append(users, u)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return users, nil
}

func parseCSVUser(rec []string) (*UserToImport, error) {
	if len(rec) > csvColumns {
		return nil, fmt.Errorf("too many columns: %d", len(rec))
	}
	col := make([]string, csvColumns)
	copy(col, rec)

	u := &UserToImport{
		LocalID:          col[0],
		Email:            col[1],
		EmailVerified:    col[2] == "true",
		PasswordHash:     col[3],
		Salt:             col[4],
		DisplayName:      col[5],
		PhotoURL:         col[6],
		PhoneNumber:      col[25],
		Disabled:         col[26] == "true",
		CustomAttributes: col[27],
	}
	for i, id := range csvProviders {
		g := col[7+4*i : 11+4*i]
		if g[0] == "" {
			continue
		}
		u.ProviderUserInfo = append(u.ProviderUserInfo, &ProviderUserInfo{
			ProviderID:  id,
			RawID:       g[0],
			Email:       g[1],
			DisplayName: g[2],
			PhotoURL:    g[3],
		})
	}

	var err error
	if u.CreatedAt, err = parseTimestamp(col[23]); err != nil {
		return nil, fmt.Errorf("invalid createdAt: %w", err)
	}
	if u.LastLoginAt, err = parseTimestamp(col[24]); err != nil {
		return nil, fmt.Errorf("invalid lastSignedInAt: %w", err)
	}
	if err := validateHashes(u); err != nil {
		return nil, err
	}
	return u, nil
}

func parseTimestamp(s string) (json.Number, error) {
	if s == "" {
		return "", nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", err
	}
	return json.Number(s), nil
}

func validateHashes(u *UserToImport) error {
	if u.PasswordHash != "" && !isValidBase64(u.PasswordHash) {
		return errors.New("password hash should be base64 encoded")
	}
	if u.Salt != "" && !isValidBase64(u.Salt) {
		return errors.New("password salt should be base64 encoded")
	}
	return nil
}

// isValidBase64 accepts standard base64 with or without padding.
func isValidBase64(s string) bool {
	_, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	return err == nil
}

func isSupportedProvider(id string) bool {
	for _, p := range csvProviders {
		if p == id {
			return true
		}
	}
	return false
}

func unsupportedKeys(fields map[string]json.RawMessage, allowed map[string]bool) []string {
	var diff []string
	for k := range fields {
		if !allowed[k] {
			diff = append(diff, k)
		}
	}
	sort.Strings(diff)
	return diff
}
