// Package bundle packs and unpacks workspace bundles: a manifest plus a
// verbatim copy of the workspace tree in a single zstd-compressed tar.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/justapithecus/planalign/errs"
	"github.com/justapithecus/planalign/iox"
	"github.com/justapithecus/planalign/types"
)

// ManifestName is the bundle manifest entry at the archive root.
const ManifestName = "manifest.json"

// Extension is the bundle file extension.
const Extension = "zst"

// Pack writes manifest.json plus the workspace tree into a zstd-compressed
// tar at outPath. Returns the archive size in bytes.
func Pack(workspacePath string, manifest *types.ExportManifest, outPath string) (int64, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, errs.IO("pack_bundle", outPath, err)
	}

	zw, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return 0, errs.IO("pack_bundle", outPath, err)
	}
	tw := tar.NewWriter(zw)

	fail := func(err error) (int64, error) {
		_ = tw.Close()
		_ = zw.Close()
		_ = out.Close()
		_ = os.Remove(outPath)
		return 0, errs.IO("pack_bundle", outPath, err)
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: ManifestName,
		Mode: 0o644,
		Size: int64(len(manifestData)),
	}); err != nil {
		return fail(err)
	}
	if _, err := tw.Write(manifestData); err != nil {
		return fail(err)
	}

	walkErr := filepath.Walk(workspacePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(workspacePath, path)
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    filepath.ToSlash(rel),
			Mode:    int64(info.Mode().Perm()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer iox.DiscardClose(f)
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return fail(walkErr)
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, errs.IO("pack_bundle", outPath, err)
	}
	return info.Size(), nil
}

// Unpack extracts a bundle into destDir and returns its manifest. Entry
// names are sanitized; anything escaping destDir rejects the archive.
func Unpack(archivePath, destDir string) (*types.ExportManifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errs.IO("unpack_bundle", archivePath, err)
	}
	defer iox.DiscardClose(f)

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errs.New(errs.ErrIO, "unpack_bundle", archivePath, fmt.Errorf("invalid or corrupted bundle: %w", err))
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var manifest *types.ExportManifest

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.ErrIO, "unpack_bundle", archivePath, fmt.Errorf("invalid or corrupted bundle: %w", err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return nil, errs.New(errs.ErrIO, "unpack_bundle", archivePath, fmt.Errorf("unsafe entry name %q", hdr.Name))
		}

		target := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errs.IO("unpack_bundle", target, err)
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return nil, errs.IO("unpack_bundle", target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return nil, errs.IO("unpack_bundle", target, err)
		}
		if err := out.Close(); err != nil {
			return nil, errs.IO("unpack_bundle", target, err)
		}

		if name == ManifestName {
			data, err := os.ReadFile(target)
			if err != nil {
				return nil, errs.IO("unpack_bundle", target, err)
			}
			var m types.ExportManifest
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, errs.New(errs.ErrIO, "unpack_bundle", archivePath, fmt.Errorf("invalid manifest: %w", err))
			}
			manifest = &m
		}
	}

	if manifest == nil {
		return nil, errs.New(errs.ErrIO, "unpack_bundle", archivePath, fmt.Errorf("bundle does not contain %s", ManifestName))
	}
	return manifest, nil
}

// ReadManifest scans a bundle for manifest.json without extracting the
// workspace tree.
func ReadManifest(archivePath string) (*types.ExportManifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errs.IO("read_manifest", archivePath, err)
	}
	defer iox.DiscardClose(f)

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errs.New(errs.ErrIO, "read_manifest", archivePath, fmt.Errorf("invalid or corrupted bundle: %w", err))
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.ErrIO, "read_manifest", archivePath, fmt.Errorf("invalid or corrupted bundle: %w", err))
		}
		if filepath.Clean(hdr.Name) != ManifestName {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, errs.IO("read_manifest", archivePath, err)
		}
		var m types.ExportManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errs.New(errs.ErrIO, "read_manifest", archivePath, fmt.Errorf("invalid manifest: %w", err))
		}
		return &m, nil
	}

	return nil, errs.New(errs.ErrIO, "read_manifest", archivePath, fmt.Errorf("bundle does not contain %s", ManifestName))
}
