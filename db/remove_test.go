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
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"firebase.google.com/tools/errorutils"
	"firebase.google.com/tools/internal"
	"firebase.google.com/tools/queue"
)

// fakeRemote is an in-memory tree. Nodes marked large report themselves as Large while they
// still have children, and as Small once all their children are gone.
type fakeRemote struct {
	mu        sync.Mutex
	nodes     map[string]bool
	calls     []string
	deleteErr map[string][]error
	noList    bool
}

func newFakeRemote(large []string, leaves ...string) *fakeRemote {
	f := &fakeRemote{nodes: make(map[string]bool), deleteErr: make(map[string][]error)}
	for _, l := range leaves {
		f.nodes[l] = false
	}
	for _, l := range large {
		f.nodes[l] = true
	}
	return f
}

func (f *fakeRemote) children(p string) []string {
	var keys []string
	for n := range f.nodes {
		if n != p && path.Dir(n) == p {
			keys = append(keys, path.Base(n))
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeRemote) DeletePath(ctx context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+p)
	if errs := f.deleteErr[p]; len(errs) > 0 {
		f.deleteErr[p] = errs[1:]
		return false, errs[0]
	}
	for n := range f.nodes {
		if n == p || strings.HasPrefix(n, p+"/") || p == "/" {
			delete(f.nodes, n)
		}
	}
	return true, nil
}

func (f *fakeRemote) PrefetchTest(ctx context.Context, p string) (NodeSize, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "prefetch "+p)
	large, ok := f.nodes[p]
	switch {
	case !ok:
		return Empty, nil
	case large && (f.noList || len(f.children(p)) > 0):
		return Large, nil
	default:
		return Small, nil
	}
}

func (f *fakeRemote) ListPath(ctx context.Context, p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list "+p)
	if f.noList {
		return nil, nil
	}
	return f.children(p), nil
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) count(call string) int {
	var n int
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// slowRemote delays every delete and records the highest number of deletes in flight.
type slowRemote struct {
	*fakeRemote
	delay    time.Duration
	inflight int
	peak     int
}

func (s *slowRemote) DeletePath(ctx context.Context, p string) (bool, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()

	time.Sleep(s.delay)
	ok, err := s.fakeRemote.DeletePath(ctx, p)

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	return ok, err
}

func (s *slowRemote) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func firebaseError(status int) error {
	codes := map[int]internal.ErrorCode{
		http.StatusBadRequest:          internal.InvalidArgument,
		http.StatusUnauthorized:        internal.Unauthenticated,
		http.StatusForbidden:           internal.PermissionDenied,
		http.StatusTooManyRequests:     internal.ResourceExhausted,
		http.StatusInternalServerError: internal.Internal,
		http.StatusServiceUnavailable:  internal.Unavailable,
	}
	return &internal.FirebaseError{
		ErrorCode: codes[status],
		String:    fmt.Sprintf("http error status: %d", status),
		Response:  &http.Response{StatusCode: status},
	}
}

func TestNewRemoverNilRemote(t *testing.T) {
	if r, err := NewRemover("/", nil, nil); r != nil || err == nil {
		t.Errorf("NewRemover() = (%v, %v); want = (nil, error)", r, err)
	}
}

func TestRemoverPath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"/":         "/",
		"users":     "/users",
		"/users/":   "/users",
		"users//a/": "/users/a",
	}
	for in, want := range cases {
		r, err := NewRemover(in, newFakeRemote(nil), nil)
		if err != nil {
			t.Fatal(err)
		}
		if r.Path() != want {
			t.Errorf("Path(%q) = %q; want = %q", in, r.Path(), want)
		}
	}
}

func TestRemoveEmptyRoot(t *testing.T) {
	remote := newFakeRemote(nil)
	r, err := NewRemover("/", remote, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"prefetch /"}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("Calls (-want +got):\n%s", diff)
	}
}

func TestRemoveSmallRoot(t *testing.T) {
	remote := newFakeRemote(nil, "/users")
	r, err := NewRemover("/users", remote, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"prefetch /users", "delete /users"}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("Calls (-want +got):\n%s", diff)
	}
	if stats := r.Stats(); stats.Success != 1 || stats.Total != 1 {
		t.Errorf("Stats() = %+v; want = {Success: 1, Total: 1}", stats)
	}
}

func TestRemoveFanOutFanIn(t *testing.T) {
	const n = 20
	var leaves []string
	for i := 0; i < n; i++ {
		leaves = append(leaves, fmt.Sprintf("/users/u%02d", i))
	}
	remote := newFakeRemote([]string{"/users"}, leaves...)
	r, err := NewRemover("/users", remote, &RemoveConfig{Concurrency: 5})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := remote.Calls()
	var deletes []string
	for _, c := range calls {
		if strings.HasPrefix(c, "delete ") {
			deletes = append(deletes, strings.TrimPrefix(c, "delete "))
		}
	}
	if len(deletes) != n+1 {
		t.Fatalf("Deletes = %d; want = %d", len(deletes), n+1)
	}
	if last := deletes[len(deletes)-1]; last != "/users" {
		t.Errorf("Last delete = %q; want = %q", last, "/users")
	}
	for _, l := range leaves {
		if got := remote.count("delete " + l); got != 1 {
			t.Errorf("Delete(%q) = %d calls; want = 1", l, got)
		}
	}
	if got := remote.count("delete /users"); got != 1 {
		t.Errorf("Delete(/users) = %d calls; want = 1", got)
	}
	if got := remote.count("list /users"); got != 1 {
		t.Errorf("List(/users) = %d calls; want = 1", got)
	}
	if len(remote.nodes) != 0 {
		t.Errorf("Remaining = %v; want = empty", remote.nodes)
	}
	if stats := r.Stats(); stats.Success != n+2 || stats.Total != n+2 {
		t.Errorf("Stats() = %+v; want = {Success: %d, Total: %d}", stats, n+2, n+2)
	}
}

func TestDefaultRemoveConfig(t *testing.T) {
	conf := DefaultRemoveConfig()
	if conf.Concurrency != 200 {
		t.Errorf("Concurrency = %d; want = 200", conf.Concurrency)
	}
	if conf.Retries != 5 {
		t.Errorf("Retries = %d; want = 5", conf.Retries)
	}
}

func TestRemoveDefaultConfigRunsChildrenInParallel(t *testing.T) {
	const n = 50
	var leaves []string
	for i := 0; i < n; i++ {
		leaves = append(leaves, fmt.Sprintf("/root/c%02d", i))
	}
	remote := &slowRemote{
		fakeRemote: newFakeRemote([]string{"/root"}, leaves...),
		delay:      20 * time.Millisecond,
	}
	r, err := NewRemover("/root", remote, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if peak := remote.Peak(); peak <= 1 {
		t.Errorf("Peak in-flight deletes = %d; want > 1", peak)
	}
	if got := remote.count("delete /root"); got != 1 {
		t.Errorf("Delete(/root) = %d calls; want = 1", got)
	}
	if stats := r.Stats(); stats.Success != n+2 || stats.Errored != 0 {
		t.Errorf("Stats() = %+v; want = {Success: %d, Errored: 0}", stats, n+2)
	}
}

func TestRemoveNestedOrder(t *testing.T) {
	remote := newFakeRemote(
		[]string{"/foo", "/foo/a"},
		"/foo/a/x", "/foo/a/y", "/foo/b")
	r, err := NewRemover("/foo", remote, &RemoveConfig{Concurrency: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"prefetch /foo",
		"list /foo",
		"prefetch /foo/a",
		"list /foo/a",
		"prefetch /foo/b",
		"delete /foo/b",
		"prefetch /foo/a/x",
		"delete /foo/a/x",
		"prefetch /foo/a/y",
		"delete /foo/a/y",
		"prefetch /foo/a",
		"delete /foo/a",
		"prefetch /foo",
		"delete /foo",
	}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("Calls (-want +got):\n%s", diff)
	}
}

func TestRemoveLargeWithoutChildren(t *testing.T) {
	remote := newFakeRemote([]string{"/foo"})
	remote.noList = true
	r, err := NewRemover("/foo", remote, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = r.Execute(context.Background())
	var ue *errorutils.UnexpectedError
	if !errors.As(err, &ue) {
		t.Fatalf("Execute() = %v; want = UnexpectedError", err)
	}
	want := []string{"prefetch /foo", "list /foo"}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("Calls (-want +got):\n%s", diff)
	}
}

func TestRemoveAbortsOnClientError(t *testing.T) {
	remote := newFakeRemote([]string{"/foo"}, "/foo/a", "/foo/b")
	remote.deleteErr["/foo/a"] = []error{firebaseError(http.StatusForbidden)}
	r, err := NewRemover("/foo", remote, &RemoveConfig{Concurrency: 1, Retries: 3})
	if err != nil {
		t.Fatal(err)
	}

	err = r.Execute(context.Background())
	if !errorutils.IsPermissionDenied(err) {
		t.Fatalf("Execute() = %v; want = PermissionDenied", err)
	}
	if got := remote.count("delete /foo/a"); got != 1 {
		t.Errorf("Delete(/foo/a) = %d calls; want = 1", got)
	}
	if got := remote.count("delete /foo"); got != 0 {
		t.Errorf("Delete(/foo) = %d calls; want = 0", got)
	}
	if stats := r.Stats(); stats.Errored != 1 || stats.Retried != 0 {
		t.Errorf("Stats() = %+v; want = {Errored: 1, Retried: 0}", stats)
	}
}

func TestRemoveRetriesTransientError(t *testing.T) {
	remote := newFakeRemote(nil, "/foo")
	remote.deleteErr["/foo"] = []error{firebaseError(http.StatusServiceUnavailable)}
	r, err := NewRemover("/foo", remote, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"prefetch /foo", "delete /foo", "prefetch /foo", "delete /foo"}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("Calls (-want +got):\n%s", diff)
	}
	if stats := r.Stats(); stats.Retried != 1 || stats.Success != 1 {
		t.Errorf("Stats() = %+v; want = {Retried: 1, Success: 1}", stats)
	}
}

func TestRemoveRetriesExhausted(t *testing.T) {
	remote := newFakeRemote(nil, "/foo")
	unavailable := firebaseError(http.StatusServiceUnavailable)
	remote.deleteErr["/foo"] = []error{unavailable, unavailable}
	r, err := NewRemover("/foo", remote, &RemoveConfig{Retries: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Execute(context.Background()); !errorutils.IsUnavailable(err) {
		t.Fatalf("Execute() = %v; want = Unavailable", err)
	}
	if got := remote.count("delete /foo"); got != 2 {
		t.Errorf("Delete(/foo) = %d calls; want = 2", got)
	}
}

func TestRemoveExecuteTwice(t *testing.T) {
	remote := newFakeRemote(nil)
	r, err := NewRemover("/", remote, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Execute(context.Background()); err == nil {
		t.Errorf("Execute() = nil; want = error")
	}
}

func TestRemoveStatsBeforeExecute(t *testing.T) {
	r, err := NewRemover("/", newFakeRemote(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats := r.Stats(); stats != (queue.Stats{}) {
		t.Errorf("Stats() = %+v; want = zero", stats)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		Name string
		Err  error
		Want bool
	}{
		{"Network", errors.New("connection reset"), true},
		{"Internal", firebaseError(http.StatusInternalServerError), true},
		{"TooManyRequests", firebaseError(http.StatusTooManyRequests), true},
		{"BadRequest", firebaseError(http.StatusBadRequest), false},
		{"Unauthorized", firebaseError(http.StatusUnauthorized), false},
		{"Unexpected", &errorutils.UnexpectedError{Msg: "boom"}, false},
		{"WrappedUnexpected", fmt.Errorf("wrapped: %w", &errorutils.UnexpectedError{Msg: "boom"}), false},
	}
	for _, tc := range cases {
		if got := shouldRetry(tc.Err); got != tc.Want {
			t.Errorf("shouldRetry(%s) = %v; want = %v", tc.Name, got, tc.Want)
		}
	}
}
