package document

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a template as authored in a fixture file.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Blocks      Blocks `yaml:"blocks"`
}

// DefinitionFile pairs a parsed definition with its on-disk source.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("document: definition name is required")
	}
	if len(d.Name) > 255 {
		return errors.New("document: definition name must be 255 characters or less")
	}
	if len(d.Blocks.Roles()) == 0 {
		return fmt.Errorf("document: definition %q has no signable blocks", d.Name)
	}
	return d.Blocks.Validate()
}

// ParseDefinitionYAML decodes and validates a single template definition.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, errors.New("document: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("document: decode definition: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitionDir parses every *.yaml / *.yml file under dir, sorted by path.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("document: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document: %s is not a directory", dir)
	}

	var files []DefinitionFile
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("document: read %s: %w", path, err)
		}
		def, err := ParseDefinitionYAML(data)
		if err != nil {
			return fmt.Errorf("document: %s: %w", path, err)
		}
		files = append(files, DefinitionFile{Definition: def, Path: filepath.Clean(path)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
