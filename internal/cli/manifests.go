package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

// readManifests loads every object in paths. A directory contributes its
// .yaml, .yml and .json files, recursively; "-" reads stdin. Items of
// v1 List objects are flattened.
func readManifests(paths []string, stdin io.Reader) ([]unstructured.Unstructured, error) {
	var out []unstructured.Unstructured
	for _, p := range paths {
		if p == "-" {
			objs, err := decodeManifests(stdin)
			if err != nil {
				return nil, fmt.Errorf("stdin: %w", err)
			}
			out = append(out, objs...)
			continue
		}
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || (path != p && !isManifestFile(path)) {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			objs, err := decodeManifests(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out = append(out, objs...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isManifestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func decodeManifests(r io.Reader) ([]unstructured.Unstructured, error) {
	dec := utilyaml.NewYAMLOrJSONDecoder(r, 4096)
	var out []unstructured.Unstructured
	for {
		var raw runtime.RawExtension
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		doc := bytes.TrimSpace(raw.Raw)
		if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
			continue
		}
		var u unstructured.Unstructured
		if err := u.UnmarshalJSON(doc); err != nil {
			return nil, err
		}
		if u.IsList() {
			list, err := u.ToList()
			if err != nil {
				return nil, err
			}
			out = append(out, list.Items...)
			continue
		}
		out = append(out, u)
	}
}
