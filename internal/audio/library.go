package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var soundExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
}

// SoundInfo describes one file in the sound library.
type SoundInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListSounds returns the playable files in the sounds directory, sorted by
// name. A missing directory is an empty library, not an error.
func ListSounds(dir string) ([]SoundInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sounds []SoundInfo
	for _, file := range files {
		if file.IsDir() || !soundExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
			continue
		}
		fi, err := file.Info()
		if err != nil {
			continue
		}
		sounds = append(sounds, SoundInfo{
			Name:     file.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	sort.Slice(sounds, func(i, j int) bool { return sounds[i].Name < sounds[j].Name })
	return sounds, nil
}

// Resolve maps a script sound filename into the sounds directory, rejecting
// path traversal.
func Resolve(dir, name string) (string, error) {
	clean := filepath.Base(name)
	if clean == "" || clean == "." || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid sound filename %q", name)
	}
	return filepath.Join(dir, clean), nil
}
