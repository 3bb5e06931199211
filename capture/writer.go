// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Save writes the capture to a file.
func (c *Capture) Save(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("capture: create %s: %w", name, err)
	}
	if err := c.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("capture: close %s: %w", name, err)
	}
	return nil
}

// WriteTo writes the capture archive to w. Entries are emitted in a
// deterministic order so identical captures produce identical bytes.
func (c *Capture) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	manifest := c.Manifest
	manifest.Version = FormatVersion
	blob, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("capture: encode manifest: %w", err)
	}
	if err := writeEntry(zw, manifestName, blob); err != nil {
		return err
	}

	for _, name := range sortedKeys(c.Shaders) {
		if err := writeEntry(zw, shaderDir+name+".wgsl", []byte(c.Shaders[name])); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Data) {
		if err := writeEntry(zw, dataDir+name+".bin", c.Data[name]); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("capture: finalize archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	ew, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("capture: create entry %s: %w", name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("capture: write entry %s: %w", name, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
