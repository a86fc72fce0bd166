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

package firebase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeRC(t *testing.T, dir, content string) {
	if err := os.WriteFile(filepath.Join(dir, firebaseRCName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveProject(t *testing.T) {
	root := t.TempDir()
	writeRC(t, root, `{"projects": {"default": "prod-project", "staging": "staging-project"}}`)
	nested := filepath.Join(root, "functions", "src")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		dir  string
		flag string
		want string
	}{
		{"Default", root, "", "prod-project"},
		{"Alias", root, "staging", "staging-project"},
		{"ProjectID", root, "other-project", "other-project"},
		{"ParentDir", nested, "", "prod-project"},
		{"ParentDirAlias", nested, "staging", "staging-project"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveProject(tc.dir, tc.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("ResolveProject(%q) = %q; want = %q", tc.flag, got, tc.want)
			}
		})
	}
}

func TestResolveProjectNoRC(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveProject(dir, "")
	if err != nil || got != "" {
		t.Errorf("ResolveProject() = (%q, %v); want = (\"\", nil)", got, err)
	}

	got, err = ResolveProject(dir, "my-project")
	if err != nil || got != "my-project" {
		t.Errorf("ResolveProject() = (%q, %v); want = (\"my-project\", nil)", got, err)
	}
}

func TestLoadRC(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `{"projects": {"default": "p1"}}`)

	rc, err := LoadRC(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := &RC{Projects: map[string]string{"default": "p1"}}
	if diff := cmp.Diff(want, rc); diff != "" {
		t.Errorf("LoadRC() (-want +got):\n%s", diff)
	}
}

func TestLoadRCInvalid(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, "{not json")

	if rc, err := LoadRC(dir); rc != nil || err == nil {
		t.Errorf("LoadRC() = (%v, %v); want = (nil, error)", rc, err)
	}
}
