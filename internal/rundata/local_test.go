// Copyright 2026 Google LLC
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

package rundata

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	gitv5 "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	flag "github.com/spf13/pflag"
)

func newRepo(t *testing.T, origin string) *gitv5.Repository {
	t.Helper()
	r, err := gitv5.InitWithOptions(memory.NewStorage(), memfs.New(), gitv5.InitOptions{DefaultBranch: plumbing.Main})
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}
	wt, err := r.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}
	f, err := wt.Filesystem.Create("scenario.yaml")
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if _, err := f.Write([]byte("ports: []\n")); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	f.Close()
	if _, err := wt.Add("scenario.yaml"); err != nil {
		t.Fatalf("Failed to add file: %v", err)
	}
	sig := &object.Signature{Name: "go-git", Email: "go-git@fake.local", When: time.Unix(1700000000, 0)}
	if _, err := wt.Commit("add scenario", &gitv5.CommitOptions{Author: sig, Committer: sig}); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if origin != "" {
		if _, err := r.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{origin}}); err != nil {
			t.Fatalf("Failed to create remote: %v", err)
		}
	}
	return r
}

func TestGitInfoWithRepo(t *testing.T) {
	const origin = "https://github.com/openconfig/ngpfbgp.git"
	r := newRepo(t, origin)
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}

	m := make(map[string]string)
	gitInfoWithRepo(m, r)
	for k, want := range map[string]string{
		"git.origin":           origin,
		"git.commit":           head.Hash().String(),
		"git.commit_timestamp": "1700000000",
		"git.clean":            "true",
	} {
		if got := m[k]; got != want {
			t.Errorf("Property %s got %q, want %q", k, got, want)
		}
	}
}

func TestGitInfoDirty(t *testing.T) {
	r := newRepo(t, "")
	wt, err := r.Worktree()
	if err != nil {
		t.Fatalf("Worktree() failed: %v", err)
	}
	if _, err := wt.Filesystem.Create("untracked.yaml"); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	m := make(map[string]string)
	gitInfoWithRepo(m, r)
	if got := m["git.clean"]; got != "false" {
		t.Errorf("Property git.clean got %q, want false", got)
	}
	if _, ok := m["git.origin"]; ok {
		t.Errorf("Property git.origin set for a repo without origin")
	}
}

func TestFlagInfo(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("api-server", "", "")
	fs.String("password", "", "")
	fs.Bool("release-ports-when-done", false, "")
	fs.Int("api-port", 0, "")
	if err := fs.Parse([]string{"--api-server=192.0.2.1", "--password=secret", "--release-ports-when-done"}); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	m := make(map[string]string)
	flagInfo(m, fs)
	want := map[string]string{
		"flag.api-server":              "192.0.2.1",
		"flag.release-ports-when-done": "true",
	}
	if len(m) != len(want) {
		t.Errorf("flagInfo() got %v, want %v", m, want)
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("Property %s got %q, want %q", k, m[k], v)
		}
	}
}
