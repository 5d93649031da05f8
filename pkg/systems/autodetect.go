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

package systems

import (
	"strings"
	"unicode"

	"hpc-launcher/pkg/logging"

	"golang.org/x/sys/unix"
)

// hostname is replaced in tests.
var hostname = func() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Nodename[:]), nil
}

// SystemName derives a system name from a host name by dropping the domain
// and every digit, e.g. "tioga12.llnl.gov" becomes "tioga".
func SystemName(host string) string {
	host, _, _ = strings.Cut(host, ".")
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, host)
}

// DetectName returns the system name of the current host.
func DetectName() string {
	host, err := hostname()
	if err != nil {
		logging.Warn("Could not read the host name: %v", err)
		return ""
	}
	return SystemName(host)
}

// Autodetect returns the catalog system of the current host, or a generic
// system when the host is unknown.
func Autodetect(c *Catalog) *System {
	name := DetectName()
	if s, ok := c.System(name); ok {
		logging.Debug("Detected system %s", name)
		return s
	}
	logging.Warn("Could not auto-detect current system, defaulting to generic system")
	return Generic(name)
}
