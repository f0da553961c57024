package id128

import (
	"fmt"
	"os"
	"sync"
)

const (
	machineIDPath = "/etc/machine-id"
	bootIDPath    = "/proc/sys/kernel/random/boot_id"
)

// BootIDSource supplies the boot id stamped on appended entries.
type BootIDSource interface {
	BootID() (ID, error)
}

// BootIDFunc adapts a function to BootIDSource.
type BootIDFunc func() (ID, error)

func (f BootIDFunc) BootID() (ID, error) { return f() }

// Static always returns the same id.
func Static(id ID) BootIDSource {
	return BootIDFunc(func() (ID, error) { return id, nil })
}

// fileSource reads an id from a file once and caches the result for the
// lifetime of the process. Boot and machine ids cannot change while we run.
type fileSource struct {
	path string
	once sync.Once
	id   ID
	err  error
}

func (s *fileSource) BootID() (ID, error) {
	s.once.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			s.err = fmt.Errorf("read %s: %w", s.path, err)
			return
		}
		s.id, s.err = Parse(string(b))
	})
	return s.id, s.err
}

var (
	kernelBoot = &fileSource{path: bootIDPath}
	machine    = &fileSource{path: machineIDPath}
)

// KernelBootID returns the Linux kernel's boot id.
func KernelBootID() BootIDSource {
	return kernelBoot
}

// FileSource reads an id from path on first use.
func FileSource(path string) BootIDSource {
	return &fileSource{path: path}
}

// MachineID returns the host's machine id, or a null id with an error when
// it cannot be read.
func MachineID() (ID, error) {
	return machine.BootID()
}
