// Package testutil provides shared test utilities and fixtures.
//
// Besides the assertion shortcuts it builds fake solver and mesher
// executables, small shell scripts that behave like the real tools closely
// enough for the batch engine: they read the case config, honour the exit
// code contract and write the output files the collector expects.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// RequireShell skips the test when no POSIX shell is available.
func RequireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	AssertNoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	AssertNoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteExecutable writes a shell script to dir/name and marks it executable.
func WriteExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := WriteFile(t, dir, name, "#!/bin/sh\n"+body)
	AssertNoError(t, os.Chmod(path, 0o755))
	return path
}

// SolverTemplate is a minimal solver config template.
const SolverTemplate = `% flat plate
SOLVER= NAVIER_STOKES
% MESH_FILENAME= commented_out.su2
MESH_FILENAME= mesh_flatplate_65x65.su2
MESH_FORMAT= SU2
ITER= 5
`

// FakeSolverScript behaves like the flow solver. It takes the config path
// as its only argument and reads MESH_FILENAME from it; the mesh must exist
// in the working directory. A mesh name containing "FAIL" makes it exit 3.
//
// Outputs are flow.vtu with 41 points along y=0 from x=-0.02 to 0 plus
// one point off the axis, surface_flow.vtu, history.csv and
// restart_flow.dat. Pressure is 101325 + d*1000*x where d is the number
// after "mesh_d" in the mesh name, so cases differ predictably.
const FakeSolverScript = `set -e
cfg="$1"
if [ ! -f "$cfg" ]; then echo "config $cfg not found" >&2; exit 2; fi
mesh=$(sed -n 's/^ *MESH_FILENAME *= *//p' "$cfg" | tail -n 1)
case "$mesh" in *FAIL*) echo "solver diverged on $mesh" >&2; exit 3;; esac
if [ ! -f "$mesh" ]; then echo "mesh $mesh not found" >&2; exit 4; fi
d=$(echo "$mesh" | sed -n 's/^mesh_d\([0-9]*\)_.*/\1/p')
[ -n "$d" ] || d=0
echo "running $cfg on $mesh"
awk -v d="$d" 'BEGIN {
  n = 41
  print "<?xml version=\"1.0\"?>"
  print "<VTKFile type=\"UnstructuredGrid\" version=\"1.0\" byte_order=\"LittleEndian\" header_type=\"UInt64\">"
  print "<UnstructuredGrid>"
  printf "<Piece NumberOfPoints=\"%d\" NumberOfCells=\"0\">\n", n + 1
  print "<Points>"
  print "<DataArray type=\"Float64\" Name=\"Points\" NumberOfComponents=\"3\" format=\"ascii\">"
  for (i = 0; i < n; i++) printf "%.9f 0 0\n", -0.02 + 0.02 * i / (n - 1)
  print "0.1 0.05 0"
  print "</DataArray>"
  print "</Points>"
  print "<PointData>"
  print "<DataArray type=\"Float64\" Name=\"Pressure\" NumberOfComponents=\"1\" format=\"ascii\">"
  for (i = 0; i < n; i++) { x = -0.02 + 0.02 * i / (n - 1); printf "%.9f\n", 101325 + d * 1000 * x }
  print "0"
  print "</DataArray>"
  print "<DataArray type=\"Float32\" Name=\"Velocity\" NumberOfComponents=\"2\" format=\"ascii\">"
  for (i = 0; i <= n; i++) printf "%d %d\n", d, i
  print "</DataArray>"
  print "</PointData>"
  print "</Piece>"
  print "</UnstructuredGrid>"
  print "</VTKFile>"
}' > flow.vtu
cp flow.vtu surface_flow.vtu
{
  echo '"Inner_Iter","    rms[Rho]    ","    rms[RhoU]   ","       CD       ","       CL       "'
  for i in 0 1 2 3 4; do
    echo "$i, -$((i + 1)).5, -$((i + 2)).25, 0.0$d, 0.00$i"
  done
} > history.csv
echo restart > restart_flow.dat
`

// FakeMesherScript behaves like gmsh: it writes a placeholder mesh to the
// path after -o.
const FakeMesherScript = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
if [ -z "$out" ]; then echo "no -o given" >&2; exit 1; fi
echo "NDIME= 2" > "$out"
`
