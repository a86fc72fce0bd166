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

// Package firebase is the entry point to the Firebase CLI libraries. It resolves the project and
package firebase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const firebaseRCName = ".firebaserc"

// RC is the content of a .firebaserc file: named aliases for the projects of a directory.
type RC struct {
	Projects map[string]string `json:"projects"`
}

// ResolveProject determines the project a command runs against.
//
// A non-empty flag is looked up as an alias in the nearest .firebaserc file found in dir or one of
// its parents, and is used as a project ID when no such alias exists. Without a flag the
// "default" alias is used. ResolveProject returns an empty string when neither is available.
func ResolveProject(dir, flag string) (string, error) {
	rc, err := LoadRC(dir)
	if err != nil {
		return "", err
	}
	if flag != "" {
		if pid, ok := rc.Projects[flag]; ok {
			return pid, nil
		}
		return flag, nil
	}
	return rc.Projects["default"], nil
}

// LoadRC reads the nearest .firebaserc file found in dir or one of its parents. It returns an
// empty RC when there is no such file.
func LoadRC(dir string) (*RC, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, firebaseRCName)
		b, err := os.ReadFile(path)
		if err == nil {
			rc := &RC{}
			if err := json.Unmarshal(b, rc); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", path, err)
			}
			return rc, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return &RC{}, nil
		}
		dir = parent
	}
}
