package problem

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const packageExt = ".tar.zst"

// PackagePath returns the location a problem package is written to.
func PackagePath(packagesDir, pid string) string {
	return filepath.Join(packagesDir, pid+packageExt)
}

// ExportPackage archives one problem directory into
// <packagesDir>/<pid>.tar.zst and returns the package path.
func (l *Loader) ExportPackage(pid, packagesDir string) (string, error) {
	if err := checkPID(pid); err != nil {
		return "", err
	}
	srcDir := l.Dir(pid)
	if _, err := os.Stat(filepath.Join(srcDir, configFileName)); err != nil {
		return "", appErr.Newf(appErr.ProblemNotFound, "problem %s not found", pid)
	}
	if err := os.MkdirAll(packagesDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "create packages dir failed")
	}

	dest := PackagePath(packagesDir, pid)
	file, err := os.Create(dest)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "create package file failed")
	}
	defer file.Close()

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "create zstd writer failed")
	}
	tw := tar.NewWriter(zw)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(srcDir, path)
		if rerr != nil {
			return rerr
		}
		if rel == "." {
			return nil
		}
		hdr, herr := tar.FileInfoHeader(info, "")
		if herr != nil {
			return herr
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		in, oerr := os.Open(path)
		if oerr != nil {
			return oerr
		}
		defer in.Close()
		_, cerr := io.Copy(tw, in)
		return cerr
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "archive problem %s failed", pid)
	}
	if err := tw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "finish tar failed")
	}
	if err := zw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.PackageExportFailed, "finish zstd failed")
	}
	return dest, nil
}

// ImportPackage installs a problem from a .tar.zst archive previously
// produced by ExportPackage.
func (l *Loader) ImportPackage(pid, archivePath string) error {
	if err := checkPID(pid); err != nil {
		return err
	}
	dest := l.Dir(pid)
	if _, err := os.Stat(dest); err == nil {
		return appErr.Newf(appErr.ProblemExists, "problem %s already exists", pid)
	}
	if err := extractPackage(archivePath, dest); err != nil {
		_ = os.RemoveAll(dest)
		return err
	}
	if _, err := l.Load(pid); err != nil {
		_ = os.RemoveAll(dest)
		return err
	}
	return nil
}

func extractPackage(srcPath, dstDir string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.PackageImportFailed, "open package failed")
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.PackageImportFailed, "create zstd reader failed")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.PackageImportFailed, "read tar entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return appErr.New(appErr.PackageImportFailed).WithMessage("invalid tar entry path")
		}
		target := filepath.Join(dstDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
			return appErr.New(appErr.PackageImportFailed).WithMessage("tar entry escape detected")
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.PackageImportFailed, "create dir failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return appErr.Wrapf(err, appErr.PackageImportFailed, "create parent dir failed")
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return appErr.Wrapf(err, appErr.PackageImportFailed, "create file failed")
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return appErr.Wrapf(err, appErr.PackageImportFailed, "write file failed")
			}
			out.Close()
		}
	}
	return nil
}
