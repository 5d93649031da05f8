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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ExpandHostlist expands a compressed Slurm node list such as
// "node[01-03,7],login1" or "rack[1-2]-node[01-02]" into individual host
// names.
func ExpandHostlist(list string) ([]string, error) {
	var hosts []string
	for _, item := range splitTopLevel(strings.TrimSpace(list)) {
		if item == "" {
			continue
		}
		expanded, err := expandHostItem(item)
		if err != nil {
			return nil, fmt.Errorf("malformed host range %q: %w", item, err)
		}
		hosts = append(hosts, expanded...)
	}
	return hosts, nil
}

// expandHostItem expands every bracketed range of a single item, left to
// right.
func expandHostItem(item string) ([]string, error) {
	open := strings.IndexByte(item, '[')
	if open < 0 {
		if strings.IndexByte(item, ']') >= 0 {
			return nil, errors.New("unbalanced ']'")
		}
		return []string{item}, nil
	}
	closing := strings.IndexByte(item[open:], ']')
	if closing < 0 {
		return nil, errors.New("unbalanced '['")
	}
	closing += open
	prefix, ranges := item[:open], item[open+1:closing]
	if strings.IndexByte(prefix, ']') >= 0 {
		return nil, errors.New("unbalanced ']'")
	}
	tails, err := expandHostItem(item[closing+1:])
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range strings.Split(ranges, ",") {
		lo, hi, isRange := strings.Cut(r, "-")
		if !isRange {
			hi = lo
		}
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, err
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("reversed range %s", r)
		}
		for i := start; i <= end; i++ {
			for _, tail := range tails {
				out = append(out, fmt.Sprintf("%s%0*d%s", prefix, len(lo), i, tail))
			}
		}
	}
	return out, nil
}

// splitTopLevel splits on commas outside of brackets.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
