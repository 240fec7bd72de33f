package repository

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// ActionType is the change Diff decides for one origin.
type ActionType int

// Diff actions.
const (
	ActionInsert ActionType = iota + 1
	ActionUpgrade
	ActionDelete
)

func (t ActionType) String() string {
	switch t {
	case ActionInsert:
		return "insert"
	case ActionUpgrade:
		return "upgrade"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one catalog change. Digest and Offset come from the remote
// record and are unset for deletes.
type Action struct {
	Type   ActionType
	Origin string
	Digest string
	Offset int64
}

// ParseDigests reads origin:digest:offset lines. Empty lines are ignored; a
// malformed line ends the sequence with a parse error.
func ParseDigests(r io.Reader) iter.Seq2[model.CatalogRecord, error] {
	return func(yield func(model.CatalogRecord, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimRight(sc.Text(), "\r")
			if text == "" {
				continue
			}
			rec, err := parseDigestLine(text)
			if err != nil {
				yield(model.CatalogRecord{}, errors.Parse("digest line", strconv.Itoa(line), err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(model.CatalogRecord{}, errors.IO("read digests", "", err))
		}
	}
}

func parseDigestLine(text string) (model.CatalogRecord, error) {
	// origins never contain ':', digests and offsets never do either
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return model.CatalogRecord{}, fmt.Errorf("want origin:digest:offset, got %q", text)
	}
	if parts[0] == "" || parts[1] == "" {
		return model.CatalogRecord{}, fmt.Errorf("empty origin or digest in %q", text)
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || offset < 0 {
		return model.CatalogRecord{}, fmt.Errorf("invalid offset in %q", text)
	}
	return model.CatalogRecord{Origin: parts[0], Digest: parts[1], Offset: offset}, nil
}

// Diff merges two origin-ordered record streams and returns the actions that
// turn local into remote. A remote stream that is not strictly increasing is
// a parse error and no actions are returned.
func Diff(local, remote iter.Seq2[model.CatalogRecord, error]) ([]Action, error) {
	nextLocal, stopLocal := iter.Pull2(local)
	defer stopLocal()
	nextRemote, stopRemote := iter.Pull2(remote)
	defer stopRemote()

	var (
		prevRemote string
		seen       bool
	)
	pullRemote := func() (model.CatalogRecord, bool, error) {
		rec, err, ok := nextRemote()
		if !ok {
			return model.CatalogRecord{}, false, nil
		}
		if err != nil {
			return model.CatalogRecord{}, false, err
		}
		if seen && rec.Origin <= prevRemote {
			return model.CatalogRecord{}, false, errors.Parse("digest list", rec.Origin,
				fmt.Errorf("not sorted after %s", prevRemote))
		}
		prevRemote, seen = rec.Origin, true
		return rec, true, nil
	}
	pullLocal := func() (model.CatalogRecord, bool, error) {
		rec, err, ok := nextLocal()
		if !ok {
			return model.CatalogRecord{}, false, nil
		}
		return rec, err == nil, err
	}

	l, lok, err := pullLocal()
	if err != nil {
		return nil, err
	}
	r, rok, err := pullRemote()
	if err != nil {
		return nil, err
	}

	var actions []Action
	for lok || rok {
		switch {
		case rok && (!lok || r.Origin < l.Origin):
			actions = append(actions, Action{Type: ActionInsert, Origin: r.Origin, Digest: r.Digest, Offset: r.Offset})
			if r, rok, err = pullRemote(); err != nil {
				return nil, err
			}
		case lok && (!rok || l.Origin < r.Origin):
			actions = append(actions, Action{Type: ActionDelete, Origin: l.Origin})
			if l, lok, err = pullLocal(); err != nil {
				return nil, err
			}
		default:
			if l.Digest != r.Digest {
				actions = append(actions, Action{Type: ActionUpgrade, Origin: r.Origin, Digest: r.Digest, Offset: r.Offset})
			}
			if l, lok, err = pullLocal(); err != nil {
				return nil, err
			}
			if r, rok, err = pullRemote(); err != nil {
				return nil, err
			}
		}
	}
	return actions, nil
}
