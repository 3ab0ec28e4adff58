// Package ociboot resolves a --bootstrap-image value of the form
// "oci:<reference>" into a plain directory a container runner can bind
// in as a RunEnvironment, by pulling the named image and flattening its
// layers on top of each other.
package ociboot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/banksean/clrm/mount"
)

const ociPrefix = "oci:"

// IsReference reports whether value names an OCI image rather than a
// plain path.
func IsReference(value string) bool {
	return strings.HasPrefix(value, ociPrefix)
}

// Resolve pulls the image named by an "oci:<reference>" value into
// cacheDir/<sanitized reference>/, flattening its layers into that
// directory, and returns a directory-backed RunEnvironment pointing at
// it. If the flattened directory already exists, the pull is skipped.
func Resolve(value, cacheDir string) (mount.RunEnvironment, error) {
	ref := strings.TrimPrefix(value, ociPrefix)
	dir := filepath.Join(cacheDir, sanitize(ref))

	if _, err := os.Stat(filepath.Join(dir, ".clrm-oci-complete")); err == nil {
		return mount.NewDirectoryEnvironment(dir), nil
	}

	img, err := crane.Pull(ref)
	if err != nil {
		return mount.RunEnvironment{}, fmt.Errorf("pulling %s: %w", ref, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mount.RunEnvironment{}, fmt.Errorf("creating bootstrap cache directory: %w", err)
	}
	if err := flatten(img, dir); err != nil {
		return mount.RunEnvironment{}, fmt.Errorf("flattening %s into %s: %w", ref, dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".clrm-oci-complete"), []byte(ref+"\n"), 0o644); err != nil {
		return mount.RunEnvironment{}, fmt.Errorf("marking bootstrap cache complete: %w", err)
	}

	return mount.NewDirectoryEnvironment(dir), nil
}

// flatten writes every layer of img into dir, oldest layer first, so
// later layers' files overwrite earlier ones. Whiteout entries are not
// interpreted: a file deleted by a later layer stays in dir.
func flatten(img v1.Image, dir string) error {
	layers, err := img.Layers()
	if err != nil {
		return err
	}
	for _, layer := range layers {
		rc, err := layer.Uncompressed()
		if err != nil {
			return err
		}
		if err := extractTar(rc, dir); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}
	return nil
}
