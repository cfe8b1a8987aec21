package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const mainFile = "blueprint.yaml"

// blueprintDoc is the part of a blueprint document that fabricd reads.
type blueprintDoc struct {
	Inputs map[string]yaml.Node `yaml:"inputs"`
}

// DeclaredInputs returns the sorted names of the inputs declared by the
// stored blueprint. Gzipped tar archives are searched for the main
// blueprint file; anything else is parsed as a bare YAML document.
func (s *FileStore) DeclaredInputs(blueprintID string) ([]string, error) {
	rc, err := s.Open(blueprintID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc, err := readDocument(rc)
	if err != nil {
		return nil, fmt.Errorf("blueprint %s: %w", blueprintID, err)
	}
	return parseInputs(doc)
}

func readDocument(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if !bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return io.ReadAll(br)
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	var fallback []byte
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if path.Base(name) == mainFile && strings.Count(name, "/") <= 1 {
			return io.ReadAll(tr)
		}
		if fallback == nil && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			if fallback, err = io.ReadAll(tr); err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
		}
	}
	if fallback == nil {
		return nil, errors.New("archive contains no blueprint document")
	}
	return fallback, nil
}

func parseInputs(doc []byte) ([]string, error) {
	var bp blueprintDoc
	if err := yaml.Unmarshal(doc, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	names := make([]string, 0, len(bp.Inputs))
	for name := range bp.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
