package problem

import (
	"io"
	"os"
	"path/filepath"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
)

// AddProblem installs a problem by copying srcDir into the problems root.
// The source must contain a parsable config; a half-copied directory is
// removed on failure.
func (l *Loader) AddProblem(pid, srcDir string) error {
	if err := checkPID(pid); err != nil {
		return err
	}
	dest := l.Dir(pid)
	if _, err := os.Stat(dest); err == nil {
		return appErr.Newf(appErr.ProblemExists, "problem %s already exists", pid)
	}
	if err := copyTree(srcDir, dest); err != nil {
		_ = os.RemoveAll(dest)
		return appErr.Wrapf(err, appErr.ProblemCreateFailed, "copy problem %s failed", pid)
	}
	if _, err := l.Load(pid); err != nil {
		_ = os.RemoveAll(dest)
		return err
	}
	return nil
}

// DeleteProblem removes a problem directory.
func (l *Loader) DeleteProblem(pid string) error {
	if err := checkPID(pid); err != nil {
		return err
	}
	dir := l.Dir(pid)
	if _, err := os.Stat(dir); err != nil {
		return appErr.Newf(appErr.ProblemNotFound, "problem %s not found", pid)
	}
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.ProblemDeleteFailed, "delete problem %s failed", pid)
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
