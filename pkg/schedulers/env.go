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
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MissingEnvError reports a scheduler variable that is absent from the
// environment of a worker process.
type MissingEnvError struct {
	Scheduler string
	Name      string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("%s: environment variable %s is not set; is this process running inside a %s job?",
		e.Scheduler, e.Name, e.Scheduler)
}

// envInt reads an integer environment variable.
func envInt(scheduler, name string) (int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, &MissingEnvError{Scheduler: scheduler, Name: name}
	}
	n, err := leadingInt(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s=%q: %w", name, raw, err)
	}
	return n, nil
}

// leadingInt parses the integer prefix of s, e.g. 2 from "2(x3)".
func leadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return strconv.Atoi(s[:end])
}

// envInts reads several integer variables in order, stopping at the first error.
func envInts(scheduler string, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		v, err := envInt(scheduler, n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
