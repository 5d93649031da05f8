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

package logging

import (
	"bytes"
	"os"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetVerbose(false)

	SetVerbose(false)
	Info("hidden %d", 1)
	Warn("shown %d", 2)
	if got, want := buf.String(), "hpc-launcher: shown 2\n"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	buf.Reset()
	SetVerbose(true)
	Info("now shown")
	if got, want := buf.String(), "hpc-launcher: now shown\n"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
