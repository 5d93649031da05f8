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
	"strings"
)

// RemovalMarker prefixes an override key that should be deleted from every
// argument bucket.
const RemovalMarker = "~"

// Args is an ordered set of scheduler arguments. A nil value renders as a
// bare flag.
type Args struct {
	keys   []string
	values map[string]*string
}

func NewArgs() *Args {
	return &Args{values: map[string]*string{}}
}

// ParseArgs builds an Args from "key" or "key=value" strings, splitting at
// the first '='.
func ParseArgs(items []string) *Args {
	a := NewArgs()
	for _, item := range items {
		key, value := ParseOverride(item)
		a.Set(key, value)
	}
	return a
}

// repeatableFlags may appear several times with different sub-keys, e.g.
// --env=A=1 --env=B=2. Their key includes the sub-key. Short forms are left
// out since -o is the LSF output file.
var repeatableFlags = map[string]bool{
	"--env":     true,
	"--setattr": true,
	"--setopt":  true,
}

// ParseOverride splits a "key[=value]" string at its first '='. For
// repeatable flags the key extends to the second '=', so "--env=A=1" has key
// "--env=A" and value "1".
func ParseOverride(s string) (string, *string) {
	key, value, found := strings.Cut(s, "=")
	if !found {
		return s, nil
	}
	if repeatableFlags[key] {
		sub, rest, hasValue := strings.Cut(value, "=")
		if !hasValue {
			return s, nil
		}
		return key + "=" + sub, &rest
	}
	return key, &value
}

// Set adds key or replaces its value in place.
func (a *Args) Set(key string, value *string) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *Args) SetValue(key, value string) {
	a.Set(key, &value)
}

func (a *Args) SetFlag(key string) {
	a.Set(key, nil)
}

func (a *Args) Get(key string) (*string, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a *Args) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (a *Args) Delete(key string) bool {
	if _, ok := a.values[key]; !ok {
		return false
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
	return true
}

func (a *Args) Keys() []string {
	return append([]string(nil), a.keys...)
}

func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

func (a *Args) Clone() *Args {
	c := NewArgs()
	if a == nil {
		return c
	}
	for _, k := range a.keys {
		c.Set(k, a.values[k])
	}
	return c
}

// Tokens renders the arguments as argv tokens. A separator of " " splits each
// key and value into two tokens.
func (a *Args) Tokens(sep string) []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, k := range a.keys {
		v := a.values[k]
		switch {
		case v == nil:
			out = append(out, k)
		case sep == " ":
			out = append(out, k, *v)
		default:
			out = append(out, k+sep+*v)
		}
	}
	return out
}

// Directives renders one header line per argument, e.g. "#SBATCH --nodes=2".
func (a *Args) Directives(prefix, sep string) []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, k := range a.keys {
		line := prefix + " " + k
		if v := a.values[k]; v != nil {
			line += sep + *v
		}
		out = append(out, line)
	}
	return out
}

// applyOverrides applies overrides in insertion order. Keys starting with
// RemovalMarker are deleted from every bucket, keys already present have
// their value replaced wherever they appear, and new keys go to the first
// bucket.
func applyOverrides(overrides *Args, buckets ...*Args) {
	if overrides.Len() == 0 || len(buckets) == 0 {
		return
	}
	for _, key := range overrides.keys {
		value := overrides.values[key]
		if strings.HasPrefix(key, RemovalMarker) {
			bare := strings.TrimPrefix(key, RemovalMarker)
			for _, b := range buckets {
				b.Delete(bare)
			}
			continue
		}
		found := false
		for _, b := range buckets {
			if b.Has(key) {
				b.Set(key, value)
				found = true
			}
		}
		if !found {
			buckets[0].Set(key, value)
		}
	}
}
