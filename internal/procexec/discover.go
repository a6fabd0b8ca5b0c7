package procexec

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Executable is a located tool and the first line of its version output.
type Executable struct {
	Path    string
	Version string
}

// Discover locates name on PATH, falling back to candidate paths in order,
// and probes it with --version. A tool whose probe fails is still returned;
// Version is left empty. Some solvers print usage and exit non-zero for
// unknown flags.
func Discover(b CommandBuilder, name string, candidates ...string) (Executable, error) {
	path, err := lookup(name, candidates)
	if err != nil {
		return Executable{}, err
	}
	exe := Executable{Path: path}
	out, err := b.BuildCommand(path, "--version").Run()
	if err == nil {
		exe.Version = firstLine(string(out))
	}
	return exe, nil
}

func lookup(name string, candidates []string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return c, nil
	}
	return "", fmt.Errorf("%s not found on PATH or in %d candidate locations", name, len(candidates))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
