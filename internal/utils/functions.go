package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// SafeFileName maps a balancer file key onto a name usable inside a temp dir.
func SafeFileName(fileKey string) string {
	return unsafeKeyChars.ReplaceAllString(fileKey, "_")
}

func ChunkFileName(tempDir, fileKey string, id int) string {
	return filepath.Join(tempDir, fmt.Sprintf("%s.chunk%d", SafeFileName(fileKey), id))
}

func StateFileName(tempDir, fileKey string) string {
	return filepath.Join(tempDir, SafeFileName(fileKey)+".state.json")
}

func ExtractChunkID(filename string) (int, error) {
	matches := ChunkIDRegex.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return -1, fmt.Errorf("could not extract chunk ID from %s", filename)
	}
	return strconv.Atoi(matches[1])
}

// ChunkFilesOnDisk lists the chunk files of fileKey in tempDir keyed by
// chunk id, whatever layout wrote them.
func ChunkFilesOnDisk(tempDir, fileKey string) (map[int]string, []int, error) {
	matches, err := filepath.Glob(filepath.Join(tempDir, SafeFileName(fileKey)+".chunk*"))
	if err != nil {
		return nil, nil, err
	}
	files := make(map[int]string)
	var ids []int
	for _, path := range matches {
		id, err := ExtractChunkID(path)
		if err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files[id] = path
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return files, ids, nil
}

// DefaultTempDir places the scratch directory beside the output file.
func DefaultTempDir(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), DefaultTempDirName)
}

func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(bytes))
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(float64(bytes)/elapsed)) + "/s"
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// CleanTempDir removes the temp dir if nothing else is left in it.
func CleanTempDir(tempDir string) error {
	entries, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return os.Remove(tempDir)
	}
	return nil
}
