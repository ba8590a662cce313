package playback

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"strconv"
	"strings"
)

// Event is one timestamped HID event from a macro file.
type Event struct {
	Time float64
	Type string
	Key  string
}

// ParseMacroFile reads a macro text file of "<time> <type> <key>" lines.
// Lines that do not split into exactly three fields are skipped, matching
// the recorder's loose output format.
func ParseMacroFile(filename string) ([]Event, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read macro file %s: %w", filename, err)
	}

	var events []Event
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) != 3 {
			continue
		}
		timestamp, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		events = append(events, Event{
			Time: timestamp,
			Type: parts[1],
			Key:  parts[2],
		})
	}

	return events, nil
}

// BuildPlaylist returns a randomized playlist of the .txt files in folder,
// with files prefixed START_ shuffled among themselves and placed first.
func BuildPlaylist(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("macro folder: %w", err)
	}

	var startFiles, otherFiles []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if strings.HasPrefix(entry.Name(), "START_") {
			startFiles = append(startFiles, entry.Name())
		} else {
			otherFiles = append(otherFiles, entry.Name())
		}
	}

	if len(startFiles)+len(otherFiles) == 0 {
		return nil, fmt.Errorf("no '.txt' files found in %s", folder)
	}

	rand.Shuffle(len(startFiles), func(i, j int) {
		startFiles[i], startFiles[j] = startFiles[j], startFiles[i]
	})
	rand.Shuffle(len(otherFiles), func(i, j int) {
		otherFiles[i], otherFiles[j] = otherFiles[j], otherFiles[i]
	})

	playlist := make([]string, 0, len(startFiles)+len(otherFiles))
	for _, name := range append(startFiles, otherFiles...) {
		playlist = append(playlist, path.Join(folder, name))
	}
	return playlist, nil
}
