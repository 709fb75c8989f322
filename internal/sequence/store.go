package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no sequence with the requested name exists.
var ErrNotFound = errors.New("sequence not found")

// ErrInvalid is returned when a script fails validation; the findings travel
// alongside in the Result.
var ErrInvalid = errors.New("sequence validation failed")

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Info describes one stored sequence for listings.
type Info struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store persists one JSON artifact per sequence name in a directory.
type Store struct {
	dir string
	log *logrus.Entry
}

// NewStore opens (and if needed creates) the sequence directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sequences directory: %w", err)
	}
	return &Store{
		dir: dir,
		log: logrus.WithField("component", "sequence"),
	}, nil
}

// path validates the name and maps it to the artifact file. The name
// restriction doubles as directory traversal protection.
func (s *Store) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid sequence name %q: only letters, numbers, hyphens and underscores are allowed", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Generate validates and compiles the script text and, only when it carries
// zero errors, persists it under the given name. Any error means nothing is
// written.
func (s *Store) Generate(name, text string) (*Sequence, Result, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, Result{}, err
	}

	commands, result := Compile(text)
	if !result.Valid() {
		return nil, result, ErrInvalid
	}

	seq := &Sequence{
		Name:     name,
		Source:   text,
		Commands: commands,
		SavedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return nil, result, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, result, fmt.Errorf("failed to write sequence file: %w", err)
	}

	s.log.Infof("Saved sequence '%s' (%d commands)", name, len(seq.Commands))
	return seq, result, nil
}

// Load recovers a stored sequence. The Source field is byte-identical to the
// text passed to Generate.
func (s *Store) Load(name string) (*Sequence, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("corrupt sequence file '%s': %w", name, err)
	}
	return &seq, nil
}

// Delete removes a stored sequence.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	s.log.Infof("Deleted sequence '%s'", name)
	return nil
}

// List returns all stored sequences, most recently modified first.
func (s *Store) List() ([]Info, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		fi, err := file.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:     file.Name()[:len(file.Name())-len(".json")],
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Modified.After(infos[j].Modified) })
	return infos, nil
}
