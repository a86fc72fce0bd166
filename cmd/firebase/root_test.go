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

package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firebase.google.com/tools/errorutils"
)

const testCredentials = "../../testdata/service_account.json"

type recordedReq struct {
	Method string
	Path   string
	Query  string
}

type recordingServer struct {
	mu     sync.Mutex
	reqs   []recordedReq
	status int
	resp   func(r *http.Request) string
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.reqs = append(s.reqs, recordedReq{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	s.mu.Unlock()

	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(s.resp(r)))
}

// setTestEnv points the CLI at the test credentials and clears the environment variables that
// would redirect it elsewhere.
func setTestEnv(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", testCredentials)
	for _, name := range []string{
		"FIREBASE_CONFIG", "FIREBASE_DATABASE_EMULATOR_HOST", "FIREBASE_AUTH_EMULATOR_HOST",
		"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT",
	} {
		t.Setenv(name, "")
	}
}

func execute(in string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(in), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUsageErrors(t *testing.T) {
	setTestEnv(t)
	cases := []struct {
		name string
		args []string
	}{
		{"UnknownFlag", []string{"--no-such-flag"}},
		{"UnknownCommandFlag", []string{"database:remove", "/foo", "--no-such-flag"}},
		{"RemoveNoPath", []string{"database:remove"}},
		{"RemoveTooManyArgs", []string{"database:remove", "/a", "/b"}},
		{"RemoveRelativePath", []string{"database:remove", "foo", "-f"}},
		{"RemoveConcurrency", []string{"database:remove", "/foo", "--concurrency", "0"}},
		{"FirestoreNoPath", []string{"firestore:delete"}},
		{"FirestorePathAndAll", []string{"firestore:delete", "users", "--all-collections"}},
		{"FirestoreConcurrency", []string{"firestore:delete", "users", "--shallow", "--concurrency", "0"}},
		{"FirestoreCollectionNoMode", []string{"firestore:delete", "users", "-f"}},
		{"FirestoreSubcollectionNoMode", []string{"firestore:delete", "users/alice/posts", "-f"}},
		{"FirestoreRecursiveAndShallow", []string{"firestore:delete", "users/alice", "-r", "--shallow", "-f"}},
		{"ImportNoFile", []string{"auth:import"}},
		{"ImportUnknownFormat", []string{"auth:import", "users.txt"}},
		{"ImportBatchSize", []string{"auth:import", "users.json", "--batch-size", "1001"}},
		{"ImportHashAlgo", []string{"auth:import", "users.json", "--hash-algo", "NO_SUCH_HASH"}},
		{"ImportHashKey", []string{"auth:import", "users.json", "--hash-algo", "HMAC_SHA256"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute("", tc.args...)
			if code := errorutils.ExitCode(err); code != errorutils.ExitUsage {
				t.Errorf("ExitCode(%v) = %d; want = %d", err, code, errorutils.ExitUsage)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"Yes", "y\n", true},
		{"YesWord", "YES\n", true},
		{"No", "n\n", false},
		{"Empty", "\n", false},
		{"NoNewline", "y", true},
		{"EOF", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &cli{in: strings.NewReader(tc.input), out: &out}
			got, err := c.confirm(false, "Delete everything?")
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("confirm(%q) = %v; want = %v", tc.input, got, tc.want)
			}
			if !strings.Contains(out.String(), "Delete everything?") {
				t.Errorf("prompt = %q; want to contain the question", out.String())
			}
		})
	}
}

func TestConfirmForce(t *testing.T) {
	c := &cli{in: strings.NewReader(""), out: &bytes.Buffer{}, nonInteractive: true}
	if ok, err := c.confirm(true, "Delete everything?"); !ok || err != nil {
		t.Errorf("confirm(force) = (%v, %v); want = (true, nil)", ok, err)
	}
}

func TestConfirmNonInteractive(t *testing.T) {
	c := &cli{in: strings.NewReader("y\n"), out: &bytes.Buffer{}, nonInteractive: true}
	ok, err := c.confirm(false, "Delete everything?")
	var ue *errorutils.UsageError
	if ok || !errors.As(err, &ue) {
		t.Errorf("confirm() = (%v, %v); want = (false, UsageError)", ok, err)
	}
}

func TestImportFormat(t *testing.T) {
	cases := []struct {
		flag     string
		location string
		want     string
	}{
		{"", "users.json", "json"},
		{"", "users.CSV", "csv"},
		{"", "gs://bucket/export/users.csv", "csv"},
		{"json", "users.txt", "json"},
		{"CSV", "users", "csv"},
	}
	for _, tc := range cases {
		got, err := importFormat(tc.flag, tc.location)
		if err != nil || got != tc.want {
			t.Errorf("importFormat(%q, %q) = (%q, %v); want = %q", tc.flag, tc.location, got, err, tc.want)
		}
	}

	for _, tc := range [][2]string{{"", "users"}, {"", "users.txt"}, {"xml", "users.json"}} {
		if got, err := importFormat(tc[0], tc[1]); err == nil {
			t.Errorf("importFormat(%q, %q) = %q; want = error", tc[0], tc[1], got)
		}
	}
}

func TestDatabaseRemove(t *testing.T) {
	setTestEnv(t)
	s := &recordingServer{resp: func(r *http.Request) string {
		if r.Method == http.MethodGet {
			return `{"name": "alice"}`
		}
		return "null"
	}}
	srv := httptest.NewServer(s)
	defer srv.Close()
	t.Setenv("FIREBASE_DATABASE_EMULATOR_HOST", srv.Listener.Addr().String())

	out, err := execute("", "database:remove", "/users/alice", "-P", "demo-project", "--force")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Data removed successfully") {
		t.Errorf("output = %q; want success message", out)
	}

	want := []recordedReq{
		{http.MethodGet, "/users/alice.json", "ns=demo-project-default-rtdb&timeout=100ms"},
		{http.MethodDelete, "/users/alice.json", "ns=demo-project-default-rtdb&print=silent"},
	}
	if diff := cmp.Diff(want, s.reqs); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
}

func TestDatabaseRemoveDeclined(t *testing.T) {
	setTestEnv(t)
	s := &recordingServer{resp: func(r *http.Request) string { return "null" }}
	srv := httptest.NewServer(s)
	defer srv.Close()
	t.Setenv("FIREBASE_DATABASE_EMULATOR_HOST", srv.Listener.Addr().String())

	out, err := execute("n\n", "database:remove", "/users", "-P", "demo-project")
	if !errors.Is(err, errAborted) {
		t.Errorf("database:remove = %v; want = %v", err, errAborted)
	}
	if !strings.Contains(out, "/users. Are you sure?") {
		t.Errorf("output = %q; want confirmation prompt", out)
	}
	if len(s.reqs) != 0 {
		t.Errorf("requests = %d; want = 0", len(s.reqs))
	}
}

func TestAuthImport(t *testing.T) {
	setTestEnv(t)
	s := &recordingServer{resp: func(r *http.Request) string { return "{}" }}
	srv := httptest.NewServer(s)
	defer srv.Close()
	t.Setenv("FIREBASE_AUTH_EMULATOR_HOST", srv.Listener.Addr().String())

	file := filepath.Join(t.TempDir(), "users.json")
	content := `{"users": [
		{"localId": "u1", "email": "u1@example.com"},
		{"localId": "u2", "email": "u2@example.com"},
		{"localId": "u3", "email": "u3@example.com"}
	]}`
	if err := os.WriteFile(file, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute("", "auth:import", file, "-P", "demo-project", "--batch-size", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Imported 3 account(s) successfully") {
		t.Errorf("output = %q; want success message", out)
	}
	if len(s.reqs) != 2 {
		t.Fatalf("requests = %d; want = 2", len(s.reqs))
	}
	for _, r := range s.reqs {
		if r.Path != "/www.googleapis.com/identitytoolkit/v3/relyingparty/uploadAccount" {
			t.Errorf("request path = %q", r.Path)
		}
	}
}

func TestAuthImportFailures(t *testing.T) {
	setTestEnv(t)
	s := &recordingServer{resp: func(r *http.Request) string {
		return `{"error": [{"index": 1, "message": "duplicate email"}]}`
	}}
	srv := httptest.NewServer(s)
	defer srv.Close()
	t.Setenv("FIREBASE_AUTH_EMULATOR_HOST", srv.Listener.Addr().String())

	file := filepath.Join(t.TempDir(), "users.csv")
	content := "u1,u1@example.com\nu2,u2@example.com\n"
	if err := os.WriteFile(file, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute("", "auth:import", file, "-P", "demo-project")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Imported 1 account(s), 1 failed", "user 1 (u2): duplicate email"} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q; want to contain %q", out, want)
		}
	}
}

func TestAuthImportInvalidFile(t *testing.T) {
	setTestEnv(t)
	file := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(file, []byte(`{"users": [{"localId": "u1", "bogus": true}]}`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := execute("", "auth:import", file, "-P", "demo-project")
	if err == nil || !strings.Contains(err.Error(), "invalid account file") {
		t.Errorf("auth:import = %v; want = invalid account file error", err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := loadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("loadEnv(missing) = %v; want = nil", err)
	}

	name := filepath.Join(dir, ".env")
	if err := os.WriteFile(name, []byte("FIREBASE_TOOLS_TEST_VAR=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIREBASE_TOOLS_TEST_VAR", "")
	os.Unsetenv("FIREBASE_TOOLS_TEST_VAR")
	if err := loadEnv(name); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("FIREBASE_TOOLS_TEST_VAR"); got != "from-file" {
		t.Errorf("FIREBASE_TOOLS_TEST_VAR = %q; want = %q", got, "from-file")
	}
}
