package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/errors"
)

// Storage lays out canonical files in a folder, one per (dataset, year).
type Storage struct {
	folder string
}

func NewStorage(folder string) *Storage {
	return &Storage{
		folder: folder,
	}
}

func (s *Storage) Folder() string {
	return s.folder
}

func (s *Storage) Path(dataset string, year int) string {
	return filepath.Join(s.folder, fmt.Sprintf("%s_%d.db", dataset, year))
}

func (s *Storage) Exists(dataset string, year int) bool {
	info, err := os.Stat(s.Path(dataset, year))
	return err == nil && !info.IsDir()
}

// Remove deletes the output for (dataset, year). Removing a missing output is
// not an error.
func (s *Storage) Remove(dataset string, year int) (bool, error) {
	err := os.Remove(s.Path(dataset, year))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.KindIO, err).AddDataset(dataset).AddYear(year)
	}
	return true, nil
}

// Years lists the years with an output for dataset, ascending.
func (s *Storage) Years(dataset string) ([]int, error) {
	entries, err := os.ReadDir(s.folder)
	if os.IsNotExist(err) {
		return []int{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(dataset)
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`^%s_(\d{4})\.db$`, regexp.QuoteMeta(dataset)))
	years := []int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := pattern.FindStringSubmatch(entry.Name())
		if len(parts) != 2 {
			continue
		}
		year, _ := strconv.Atoi(parts[1])
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// tempPath is a unique scratch path in the output folder, so the final rename
// never crosses file systems.
func (s *Storage) tempPath(dataset string, year int) string {
	return filepath.Join(s.folder, fmt.Sprintf(".%s_%d.%s.tmp", dataset, year, uuid.NewString()))
}
