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
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetupRendezvousProtocol(t *testing.T) {
	s := NewSlurm(nil)
	got, err := s.SetupRendezvousProtocol(ProtocolTCP)
	if err != nil {
		t.Fatalf("SetupRendezvousProtocol failed: %v", err)
	}
	want := []EnvVar{
		{EnvScheduler, "slurm"},
		{EnvMasterAddr, "$(scontrol show hostnames $SLURM_JOB_NODELIST | head -n 1)"},
		{EnvMasterPort, "23456"},
		{EnvRDVProtocol, "tcp://${TORCHRUN_HPC_MASTER_ADDR}:${TORCHRUN_HPC_MASTER_PORT}"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tcp bindings mismatch (-want +got):\n%s", diff)
	}

	got, err = NewFlux(nil).SetupRendezvousProtocol(ProtocolMPI)
	if err != nil {
		t.Fatalf("SetupRendezvousProtocol failed: %v", err)
	}
	want = []EnvVar{{EnvScheduler, "flux"}, {EnvRDVProtocol, "mpi://"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mpi bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsupportedProtocol(t *testing.T) {
	for _, name := range Names() {
		s, _ := New(name, nil)
		_, err := s.SetupRendezvousProtocol(Protocol("gloo"))
		var upe *UnsupportedProtocolError
		if !errors.As(err, &upe) {
			t.Fatalf("%s: Expected *UnsupportedProtocolError, got %v", name, err)
		}
		if upe.Protocol != "gloo" || upe.Scheduler != name {
			t.Errorf("Expected protocol gloo for %s, got %+v", name, upe)
		}
	}
}

func TestParseProtocol(t *testing.T) {
	for in, want := range map[string]Protocol{"tcp": ProtocolTCP, "MPI": ProtocolMPI, "tcp://": ProtocolTCP} {
		got, err := ParseProtocol(in)
		if err != nil || got != want {
			t.Errorf("ParseProtocol(%q): Expected %q, got %q (%v)", in, want, got, err)
		}
	}
	_, err := ParseProtocol("nccl")
	if err == nil {
		t.Fatalf("Expected an error for an unknown protocol")
	}
	if want := `unsupported rendezvous protocol "nccl"`; err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestUnsupportedProtocolMessage(t *testing.T) {
	err := &UnsupportedProtocolError{Protocol: "gloo", Scheduler: "flux"}
	if want := `unsupported rendezvous protocol "gloo" for scheduler flux`; err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestDynamicRendezvousSlurm(t *testing.T) {
	t.Setenv("SLURM_JOB_NODELIST", "ruby[012-014],ruby20")
	got, err := NewSlurm(nil).DynamicallyConfigureRendezvousProtocol(ProtocolTCP)
	if err != nil {
		t.Fatalf("DynamicallyConfigureRendezvousProtocol failed: %v", err)
	}
	if got[1].Name != EnvMasterAddr || got[1].Value != "ruby012" {
		t.Errorf("Expected master address ruby012, got %+v", got[1])
	}
}

func TestDynamicRendezvousLSF(t *testing.T) {
	t.Setenv("LSB_HOSTS", "batch3 lassen7 lassen7 lassen8")
	got, err := NewLSF(nil).DynamicallyConfigureRendezvousProtocol(ProtocolTCP)
	if err != nil {
		t.Fatalf("DynamicallyConfigureRendezvousProtocol failed: %v", err)
	}
	if got[1].Value != "lassen7" {
		t.Errorf("Expected master address lassen7, got %q", got[1].Value)
	}
}

func unsetEnv(t *testing.T, names ...string) {
	for _, n := range names {
		t.Setenv(n, "")
		os.Unsetenv(n)
	}
}

func TestDynamicRendezvousMPIUnavailable(t *testing.T) {
	unsetEnv(t, "PMI_RANK", "PMIX_RANK", "OMPI_COMM_WORLD_RANK")
	t.Setenv("PATH", t.TempDir())

	_, err := NewLocal(nil).DynamicallyConfigureRendezvousProtocol(ProtocolMPI)
	if !errors.Is(err, ErrMPIUnavailable) {
		t.Errorf("Expected ErrMPIUnavailable, got %v", err)
	}

	t.Setenv("PMIX_RANK", "0")
	if _, err := NewLocal(nil).DynamicallyConfigureRendezvousProtocol(ProtocolMPI); err != nil {
		t.Errorf("Expected MPI to be available under PMIx, got %v", err)
	}
}
