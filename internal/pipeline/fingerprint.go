package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aadhaar_pulse/internal/ingest"
)

// Fingerprint hashes the name, size and modification time of every CSV under
// the input folders. Missing folders contribute nothing.
func Fingerprint(dataDir string) (string, error) {
	var lines []string
	for _, sub := range []string{EnrolmentDir, DemographicDir, BiometricDir} {
		entries, err := os.ReadDir(filepath.Join(dataDir, sub))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("fingerprint: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !ingest.IsCSV(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return "", fmt.Errorf("fingerprint: %w", err)
			}
			lines = append(lines, fmt.Sprintf("%s/%s|%d|%d", sub, e.Name(), info.Size(), info.ModTime().UnixNano()))
		}
	}
	sort.Strings(lines)
	h := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:]), nil
}
