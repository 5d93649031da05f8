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

package schedulers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpandHostlist(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"node1", []string{"node1"}},
		{"node[1-3]", []string{"node1", "node2", "node3"}},
		{"tioga[08-10,12]", []string{"tioga08", "tioga09", "tioga10", "tioga12"}},
		{"a[1-2],b7,c[5]", []string{"a1", "a2", "b7", "c5"}},
		{"rack[1-2]-node[01-02]", []string{"rack1-node01", "rack1-node02", "rack2-node01", "rack2-node02"}},
		{"gpu[3]-ib,cpu[1-2]x", []string{"gpu3-ib", "cpu1x", "cpu2x"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandHostlist(tt.in)
			if err != nil {
				t.Fatalf("ExpandHostlist(%q) failed: %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("hosts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandHostlistMalformed(t *testing.T) {
	for _, in := range []string{"node[a-3]", "node]1[", "node[1-x]", "node[5-3]", "rack[1-2]-node[2-1]", "node[1-2", "node1]"} {
		if _, err := ExpandHostlist(in); err == nil {
			t.Errorf("ExpandHostlist(%q): Expected an error", in)
		}
	}
}

func TestFirstHostMultiRange(t *testing.T) {
	got, err := firstHost("rack[1-2]-node[01-02]")
	if err != nil {
		t.Fatalf("firstHost failed: %v", err)
	}
	if got != "rack1-node01" {
		t.Errorf("Expected %q, got %q", "rack1-node01", got)
	}
}
