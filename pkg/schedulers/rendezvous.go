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
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Protocol is a distributed rendezvous protocol.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolMPI Protocol = "mpi"
)

// Environment variables passed from the launcher to worker processes.
const (
	EnvScheduler   = "TORCHRUN_HPC_SCHEDULER"
	EnvRDVProtocol = "TORCHRUN_HPC_RDV_PROTOCOL"
	EnvMasterAddr  = "TORCHRUN_HPC_MASTER_ADDR"
	EnvMasterPort  = "TORCHRUN_HPC_MASTER_PORT"
	EnvMaxGPUMem   = "TORCHRUN_HPC_MAX_GPU_MEM"
)

// DefaultMasterPort is the TCP rendezvous port.
const DefaultMasterPort = 23456

// ErrMPIUnavailable is returned when the MPI protocol is requested without an
// MPI runtime.
var ErrMPIUnavailable = errors.New("MPI rendezvous protocol selected but no MPI runtime is available")

// UnsupportedProtocolError reports a protocol that a scheduler cannot set up.
type UnsupportedProtocolError struct {
	Protocol  string
	Scheduler string
}

func (e *UnsupportedProtocolError) Error() string {
	if e.Scheduler == "" {
		return fmt.Sprintf("unsupported rendezvous protocol %q", e.Protocol)
	}
	return fmt.Sprintf("unsupported rendezvous protocol %q for scheduler %s", e.Protocol, e.Scheduler)
}

// ParseProtocol accepts "tcp" or "mpi", with or without a "://" suffix.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "://"))
	switch p {
	case ProtocolTCP, ProtocolMPI:
		return p, nil
	}
	return "", &UnsupportedProtocolError{Protocol: s}
}

// URL is the init method exported as TORCHRUN_HPC_RDV_PROTOCOL.
func (p Protocol) URL() string {
	if p == ProtocolMPI {
		return "mpi://"
	}
	return fmt.Sprintf("tcp://${%s}:${%s}", EnvMasterAddr, EnvMasterPort)
}

// MPIAvailable reports whether an MPI launcher is on PATH or the process was
// started by one.
func MPIAvailable() bool {
	for _, v := range []string{"PMI_RANK", "PMIX_RANK", "OMPI_COMM_WORLD_RANK"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	for _, bin := range []string{"mpirun", "mpiexec"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

// rendezvousEnv builds the bindings shared by all schedulers. masterAddr is
// only consulted for TCP.
func rendezvousEnv(scheduler string, protocol Protocol, masterAddr func() (string, error)) ([]EnvVar, error) {
	switch protocol {
	case ProtocolTCP:
		addr, err := masterAddr()
		if err != nil {
			return nil, err
		}
		return []EnvVar{
			{Name: EnvScheduler, Value: scheduler},
			{Name: EnvMasterAddr, Value: addr},
			{Name: EnvMasterPort, Value: strconv.Itoa(DefaultMasterPort)},
			{Name: EnvRDVProtocol, Value: protocol.URL()},
		}, nil
	case ProtocolMPI:
		return []EnvVar{
			{Name: EnvScheduler, Value: scheduler},
			{Name: EnvRDVProtocol, Value: protocol.URL()},
		}, nil
	}
	return nil, &UnsupportedProtocolError{Protocol: string(protocol), Scheduler: scheduler}
}

// dynamicRendezvousEnv is rendezvousEnv on a worker, where MPI must be usable.
func dynamicRendezvousEnv(scheduler string, protocol Protocol, masterAddr func() (string, error)) ([]EnvVar, error) {
	if protocol == ProtocolMPI && !MPIAvailable() {
		return nil, ErrMPIUnavailable
	}
	return rendezvousEnv(scheduler, protocol, masterAddr)
}

func staticAddr(expr string) func() (string, error) {
	return func() (string, error) { return expr, nil }
}

// firstHost returns the first host of a compressed host list.
func firstHost(list string) (string, error) {
	hosts, err := ExpandHostlist(list)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("empty host list %q", list)
	}
	return hosts[0], nil
}
