// Package validate holds the field checks behind config.Validate. Checks
// return plain errors; the caller attaches the YAML path.
package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ValidationError ties a problem to the YAML path it was found at.
type ValidationError struct {
	Path    string // e.g. "discovery.port" or "build.stages[1].command"
	Message string
	Hint    string // optional, printed after the message
}

func (e ValidationError) Error() string {
	if e.Hint == "" {
		return e.Path + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Hint)
}

// Port accepts 1-65535.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535; got %d", port)
	}
	return nil
}

// IPv4 accepts dotted IPv4 addresses, including broadcast addresses.
func IPv4(addr string) error {
	if ip := net.ParseIP(addr); ip == nil || ip.To4() == nil {
		return fmt.Errorf("expected an IPv4 address; got %q", addr)
	}
	return nil
}

// DataDir accepts an existing writable directory, or a path whose closest
// existing ancestor is one. path must already be expanded.
func DataDir(path string) error {
	if path == "" {
		return fmt.Errorf("must not be empty")
	}
	dir := filepath.Clean(path)
	for {
		info, err := os.Stat(dir)
		switch {
		case err == nil && !info.IsDir():
			if dir == filepath.Clean(path) {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return fmt.Errorf("cannot create directory under %s: not a directory", dir)
		case err == nil:
			return Writable(dir)
		case !os.IsNotExist(err):
			return fmt.Errorf("cannot access %s: %v", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// Writable reports whether a file can be created in dir.
func Writable(dir string) error {
	f, err := os.CreateTemp(dir, ".collab-write-test-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %v", dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}
