package solvercfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/monitoring"
)

func TestCaseConfigName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lam_flatplate_d004_H03.cfg", CaseConfigName("/study/lam_flatplate.cfg", "d004_H03"))
	assert.Equal(t, "solver_x", CaseConfigName("solver", "x"))
}

func TestWithCaseConfig_TemplateUntouchedAndCleanedUp(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/study/lam_flatplate.cfg", []byte(template), 0o644))
	dst := "/work/d004_H03/lam_flatplate_d004_H03.cfg"

	var seen string
	err := WithCaseConfig(fsys, "/study/lam_flatplate.cfg", dst, map[string]string{"MESH_FILENAME": "mesh_d004_H03.su2"}, func(path string) error {
		data, err := fsys.ReadFile(path)
		require.NoError(t, err)
		seen = string(data)
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, seen, "MESH_FILENAME= mesh_d004_H03.su2\n")
	assert.False(t, fsys.Exists(dst), "case config removed")

	tmpl, err := fsys.ReadFile("/study/lam_flatplate.cfg")
	require.NoError(t, err)
	assert.Equal(t, template, string(tmpl), "template never mutated")
}

func TestWithCaseConfig_CleanupOnFailureAndPanic(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/study/s.cfg", []byte(template), 0o644))
	dst := "/work/c/s_c.cfg"
	boom := errors.New("solver crashed")

	err := WithCaseConfig(fsys, "/study/s.cfg", dst, nil, func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, fsys.Exists(dst))

	assert.Panics(t, func() {
		_ = WithCaseConfig(fsys, "/study/s.cfg", dst, nil, func(string) error { panic("killed") })
	})
	assert.False(t, fsys.Exists(dst), "deferred cleanup runs while panicking")
}

func TestWithCaseConfig_MissingTemplate(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	called := false
	err := WithCaseConfig(fsys, "/study/none.cfg", "/work/c/none_c.cfg", nil, func(string) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestMaterialize_LogsAppendedDirectives(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/t.cfg", []byte("ITER= 1\n"), 0o644))
	require.NoError(t, Materialize(fsys, "/t.cfg", "/out.cfg", map[string]string{"MESH_FILENAME": "m.su2"}))
	assert.Equal(t, 1, logged)
}

func TestBackupRestore(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	path := "/study/lam_flatplate.cfg"
	require.NoError(t, fsys.WriteFile(path, []byte(template), 0o644))

	restore, err := Backup(fsys, path)
	require.NoError(t, err)
	require.NoError(t, RewriteInPlace(fsys, path, map[string]string{"MESH_FILENAME": "mesh_d002_H03.su2"}))

	v, _ := func() (string, bool) {
		data, _ := fsys.ReadFile(path)
		return Directive(data, "MESH_FILENAME")
	}()
	assert.Equal(t, "mesh_d002_H03.su2", v)

	_, err = Backup(fsys, path)
	assert.Error(t, err, "second backup refused while one is outstanding")

	require.NoError(t, restore())
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, template, string(data))
	assert.False(t, fsys.Exists(path+".backup"))
}
