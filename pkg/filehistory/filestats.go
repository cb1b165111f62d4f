package filehistory

import (
	"context"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/modules"
)

// GuiltyWindow is how far back from the reference time a patch counts as a
// suspect for a regression.
const GuiltyWindow = 3 * 24 * time.Hour

// Summary condenses a Result.
type Summary struct {
	Authors map[string]*AuthorStats `json:"authors"`
	Bugs    []int                   `json:"bugs"`
	Patches int                     `json:"patches"`
}

// Guilty lists the patches landed inside the guilty window.
type Guilty struct {
	// MainAuthor wrote the most guilty patches; ties go to the smallest email.
	MainAuthor string  `json:"main_author"`
	Patches    []Patch `json:"patches"`
	Bugs       []int   `json:"bugs"`
}

// FileStats describes one file's history around a reference time.
type FileStats struct {
	Path   string  `json:"path"`
	Module string  `json:"module,omitempty"`
	Infos  Summary `json:"infos"`
	Guilty *Guilty `json:"guilty,omitempty"`
}

// Stats fetches path as of node and reports its whole history plus the
// patches pushed during the GuiltyWindow ending at at. With guiltyOnly set,
// a file without guilty patches yields nil.
func (s *Store) Stats(ctx context.Context, path, node string, at time.Time, guiltyOnly bool) (*FileStats, error) {
	err := s.Fetch(ctx, node, []string{path})
	if err != nil {
		return nil, err
	}

	all := s.Get(path, Filter{})
	guilty := s.Get(path, Filter{From: at.Add(-GuiltyWindow), To: at})

	if guiltyOnly && len(guilty.Patches) == 0 {
		return nil, nil //nolint:nilnil // no guilty patch is not an error.
	}

	stats := &FileStats{
		Path:   path,
		Module: modules.Default().Lookup(path),
		Infos:  Summary{Authors: all.Authors, Bugs: all.Bugs, Patches: len(all.Patches)},
	}

	if len(guilty.Patches) > 0 {
		stats.Guilty = &Guilty{
			MainAuthor: mainAuthor(guilty.Authors),
			Patches:    guilty.Patches,
			Bugs:       guilty.Bugs,
		}
	}

	return stats, nil
}

func mainAuthor(authors map[string]*AuthorStats) string {
	names := make([]string, 0, len(authors))
	for name := range authors {
		names = append(names, name)
	}

	slices.Sort(names)

	best, count := "", 0

	for _, name := range names {
		if authors[name].Count > count {
			best, count = name, authors[name].Count
		}
	}

	return best
}
