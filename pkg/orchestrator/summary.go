package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Summary describes what applying a job set will do.
type Summary struct {
	Lines        []string
	DownloadSize int64
	OldSize      int64
	NewSize      int64
}

// Summarize computes the summary of set. Packages already present below
// cacheDir do not count towards the download size.
func Summarize(set *model.JobSet, cacheDir string) Summary {
	var s Summary
	for job := range set.All() {
		p := job.Package
		switch job.Type {
		case model.JobRemove:
			s.OldSize += p.FlatSize
			s.Lines = append(s.Lines, fmt.Sprintf("Removing %s", p.NameVersion()))
			continue
		case model.JobUpgrade:
			s.OldSize += job.OldFlatSize
			s.NewSize += p.FlatSize
			switch c := version.Compare(job.OldVersion, p.Version); {
			case c > 0:
				s.Lines = append(s.Lines, fmt.Sprintf("Downgrading %s from %s to %s", p.Name, job.OldVersion, p.Version))
			case c == 0:
				s.Lines = append(s.Lines, fmt.Sprintf("Reinstalling %s", p.NameVersion()))
			default:
				s.Lines = append(s.Lines, fmt.Sprintf("Upgrading %s from %s to %s", p.Name, job.OldVersion, p.Version))
			}
		default:
			s.NewSize += p.FlatSize
			s.Lines = append(s.Lines, fmt.Sprintf("Installing %s", p.NameVersion()))
		}

		if !fetch.IsURL(p.Location) {
			continue
		}
		s.DownloadSize += p.PkgSize
		if info, err := os.Stat(cachePath(cacheDir, p)); err == nil {
			s.DownloadSize -= info.Size()
		}
	}
	if s.DownloadSize < 0 {
		s.DownloadSize = 0
	}
	return s
}

// SpaceMessage reports the disk space freed or additionally required.
func (s Summary) SpaceMessage() string {
	if s.OldSize > s.NewSize {
		return fmt.Sprintf("The operation will free %s.", humanize.Bytes(uint64(s.OldSize-s.NewSize)))
	}
	return fmt.Sprintf("The operation will require %s more space.", humanize.Bytes(uint64(s.NewSize-s.OldSize)))
}

// DownloadMessage reports the amount to fetch, or "" when nothing needs fetching.
func (s Summary) DownloadMessage() string {
	if s.DownloadSize <= 0 {
		return ""
	}
	return fmt.Sprintf("%s to be downloaded.", humanize.Bytes(uint64(s.DownloadSize)))
}

// Print writes the job lines followed by the space and download messages.
func (s Summary) Print(w io.Writer) error {
	var b strings.Builder
	for _, line := range s.Lines {
		fmt.Fprintf(&b, "\t%s\n", line)
	}
	fmt.Fprintf(&b, "\n%s\n", s.SpaceMessage())
	if msg := s.DownloadMessage(); msg != "" {
		fmt.Fprintf(&b, "%s\n", msg)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// cachePath is where the package file of p is kept once fetched.
func cachePath(cacheDir string, p *model.Package) string {
	if p.RepoPath != "" {
		return filepath.Join(cacheDir, filepath.FromSlash(strings.TrimPrefix(p.RepoPath, "/")))
	}
	base := path.Base(p.Location)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(cacheDir, base)
}
