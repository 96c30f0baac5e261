package generation

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Mounter makes sure the staging path is backed by an in-memory
// filesystem.
type Mounter interface {
	EnsureMount(path string) error
}

// NoopMounter leaves the staging path on whatever filesystem it is on.
type NoopMounter struct{}

func (NoopMounter) EnsureMount(string) error { return nil }

var memoryFilesystems = map[string]bool{
	"ramfs": true,
	"tmpfs": true,
}

// IsMounted reports whether path is the mountpoint of an in-memory
// filesystem according to the given mount table (/proc/mounts format).
func IsMounted(mountsFile, path string) (bool, error) {
	f, err := os.Open(mountsFile)
	if err != nil {
		return false, fmt.Errorf("error reading mount table: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if unescapeMountPath(fields[1]) == path && memoryFilesystems[fields[2]] {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// mount tables escape space, tab, newline and backslash as octal.
func unescapeMountPath(p string) string {
	if !strings.Contains(p, `\`) {
		return p
	}
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(p)
}
