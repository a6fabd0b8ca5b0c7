package solvercfg

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/monitoring"
)

// CaseConfigName is the per-case copy's file name: lam_flatplate.cfg for
// case d004_H03 becomes lam_flatplate_d004_H03.cfg.
func CaseConfigName(templatePath, caseID string) string {
	base := filepath.Base(templatePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + caseID + ext
}

// Materialize writes the template with overrides applied to dst. The
// template is only read.
func Materialize(fsys fsutil.FileSystem, templatePath, dst string, overrides map[string]string) error {
	tmpl, err := fsys.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("read config template: %w", err)
	}
	out, appended, err := Rewrite(tmpl, overrides)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", templatePath, err)
	}
	if len(appended) > 0 {
		monitoring.Logf("config template %s has no %v directive; appended to %s", templatePath, appended, dst)
	}
	if err := fsys.WriteFile(dst, out, 0o644); err != nil {
		return fmt.Errorf("write case config: %w", err)
	}
	return nil
}

// WithCaseConfig materializes the case config at dst, calls fn with its
// path, and removes dst on every exit path, including a panic in fn.
func WithCaseConfig(fsys fsutil.FileSystem, templatePath, dst string, overrides map[string]string, fn func(path string) error) (err error) {
	if err := Materialize(fsys, templatePath, dst, overrides); err != nil {
		// A partial write may have left the file behind.
		removeQuietly(fsys, dst)
		return err
	}
	defer func() {
		if rmErr := fsys.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = fmt.Errorf("remove case config: %w", rmErr)
		}
	}()
	return fn(dst)
}

// Backup copies path to path+".backup" and returns a restore function that
// copies it back and deletes the backup. It serves the legacy in-place
// mode, which edits the shared template and must put it back afterwards.
func Backup(fsys fsutil.FileSystem, path string) (restore func() error, err error) {
	backup := path + ".backup"
	if fsys.Exists(backup) {
		return nil, fmt.Errorf("backup %s already exists; a previous in-place run did not restore it", backup)
	}
	if err := fsutil.CopyFile(fsys, path, backup); err != nil {
		return nil, fmt.Errorf("backup config: %w", err)
	}
	return func() error {
		if err := fsutil.CopyFile(fsys, backup, path); err != nil {
			return fmt.Errorf("restore config: %w", err)
		}
		if err := fsys.Remove(backup); err != nil {
			return fmt.Errorf("remove config backup: %w", err)
		}
		return nil
	}, nil
}

// RewriteInPlace applies overrides to the file at path.
func RewriteInPlace(fsys fsutil.FileSystem, path string, overrides map[string]string) error {
	return Materialize(fsys, path, path, overrides)
}

func removeQuietly(fsys fsutil.FileSystem, path string) {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		monitoring.Logf("cleanup %s: %v", path, err)
	}
}
