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
	"testing"

	"github.com/spf13/afero"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type CatalogSuite struct {
	fs afero.Fs
}

var _ = Suite(&CatalogSuite{})

func (s *CatalogSuite) SetUpTest(c *C) {
	s.fs = afero.NewMemMapFs()
}

func (s *CatalogSuite) TestDefaultCatalogSystems(c *C) {
	cat := DefaultCatalog()
	c.Check(cat.Names(), DeepEquals, []string{
		"elcap", "ipa", "lassen", "rzadams", "rzansel", "sierra", "tioga", "tuolumne",
	})

	tioga, ok := cat.System("tioga")
	c.Assert(ok, Equals, true)
	c.Check(tioga.Family, Equals, FamilyElCapitan)
	c.Check(tioga.DefaultQueue, Equals, "pdebug")
	c.Check(tioga.Queues["pdebug"].GPUArch, Equals, "gfx90a")
	c.Check(tioga.Queues["mi300a"].MemPerGPU, Equals, 128.0)
	c.Check(tioga.Queues["pdebug"].FractionMaxGPUMem, Equals, 1.0)
	c.Check(tioga.PreferredScheduler(), Equals, "flux")

	ipa, _ := cat.System("ipa")
	c.Check(ipa.QueueNames(), DeepEquals, []string{"a100", "aa100", "av100", "v100"})
	c.Check(ipa.PreferredScheduler(), Equals, "slurm")

	lassen, _ := cat.System("lassen")
	c.Check(lassen.PreferredScheduler(), Equals, "lsf")
}

func (s *CatalogSuite) TestLoadCatalogMergesUserFile(c *C) {
	user := `
systems:
  mycluster:
    family: generic
    default_queue: gpu
    queues:
      gpu:
        cores_per_node: 48
        gpus_per_node: 8
        mem_per_gpu: 80
        numa_domains: 2
        scheduler: slurm
    passthrough_env:
      - name: NCCL_DEBUG
        value: INFO
  tioga:
    family: el-capitan
    default_queue: pbatch
    queues:
      pbatch:
        cores_per_node: 1
        gpus_per_node: 1
        mem_per_gpu: 1
        numa_domains: 1
        scheduler: flux
`
	c.Assert(afero.WriteFile(s.fs, "/etc/systems.yaml", []byte(user), 0o644), IsNil)

	cat, err := LoadCatalog(s.fs, "/etc/systems.yaml")
	c.Assert(err, IsNil)

	mine, ok := cat.System("mycluster")
	c.Assert(ok, Equals, true)
	c.Check(mine.Queues["gpu"].GPUsPerNode, Equals, 8)
	c.Check(mine.PassthroughEnvironmentVariables()[0].Name, Equals, "NCCL_DEBUG")

	tioga, _ := cat.System("tioga")
	c.Check(tioga.DefaultQueue, Equals, "pbatch")

	_, ok = cat.System("lassen")
	c.Check(ok, Equals, true)
}

func (s *CatalogSuite) TestLoadCatalogErrors(c *C) {
	_, err := LoadCatalog(s.fs, "/missing.yaml")
	c.Check(err, ErrorMatches, "failed to read system catalog /missing.yaml.*")

	c.Assert(afero.WriteFile(s.fs, "/typo.yaml", []byte("systems:\n  x:\n    familly: cts2\n"), 0o644), IsNil)
	_, err = LoadCatalog(s.fs, "/typo.yaml")
	c.Check(err, ErrorMatches, "(?s).*field familly not found.*")

	bad := "systems:\n  x:\n    default_queue: q\n    queues:\n      q:\n        scheduler: pbs\n"
	c.Assert(afero.WriteFile(s.fs, "/bad.yaml", []byte(bad), 0o644), IsNil)
	_, err = LoadCatalog(s.fs, "/bad.yaml")
	c.Check(err, ErrorMatches, "(?s).*unknown scheduler.*")

	noDefault := "systems:\n  x:\n    default_queue: nope\n    queues:\n      q:\n        scheduler: slurm\n"
	c.Assert(afero.WriteFile(s.fs, "/nodefault.yaml", []byte(noDefault), 0o644), IsNil)
	_, err = LoadCatalog(s.fs, "/nodefault.yaml")
	c.Check(err, ErrorMatches, `(?s).*default queue "nope" has no parameters.*`)
}

func (s *CatalogSuite) TestYAMLRoundTrip(c *C) {
	out, err := DefaultCatalog().YAML()
	c.Assert(err, IsNil)
	again, err := ParseCatalog(out)
	c.Assert(err, IsNil)
	c.Check(again.Names(), DeepEquals, DefaultCatalog().Names())
}
