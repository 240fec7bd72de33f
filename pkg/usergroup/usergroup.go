//go:generate mockgen -destination=mocks/usergroup.go . Provisioner

// Package usergroup parses the user and group requirements of packages and
// hands them to a provisioner.
package usergroup

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// User is a user requirement. A bare name has Full unset and only Name filled.
type User struct {
	Name  string
	UID   int
	GID   int
	Class string
	Gecos string
	Home  string
	Shell string
	Full  bool
}

// Group is a group requirement. A bare name has Full unset and only Name filled.
type Group struct {
	Name    string
	GID     int
	Members []string
	Full    bool
}

// Provisioner creates users and groups on the target system.
type Provisioner interface {
	EnsureUser(ctx context.Context, u User) error
	EnsureGroup(ctx context.Context, g Group) error
}

// ParseUser parses a bare name or a master.passwd line
// (name:password:uid:gid:class:change:expire:gecos:home:shell).
func ParseUser(entry string) (User, error) {
	if !strings.Contains(entry, ":") {
		if entry == "" {
			return User{}, errors.Parse("parse user", entry, fmt.Errorf("empty entry"))
		}
		return User{Name: entry}, nil
	}
	f := strings.Split(entry, ":")
	if len(f) != 10 {
		return User{}, errors.Parse("parse user", f[0], fmt.Errorf("want 10 fields, got %d", len(f)))
	}
	uid, err := strconv.Atoi(f[2])
	if err != nil {
		return User{}, errors.Parse("parse user", f[0], fmt.Errorf("invalid uid %q", f[2]))
	}
	gid, err := strconv.Atoi(f[3])
	if err != nil {
		return User{}, errors.Parse("parse user", f[0], fmt.Errorf("invalid gid %q", f[3]))
	}
	return User{
		Name:  f[0],
		UID:   uid,
		GID:   gid,
		Class: f[4],
		Gecos: f[7],
		Home:  f[8],
		Shell: f[9],
		Full:  true,
	}, nil
}

// ParseGroup parses a bare name or a group line (name:password:gid:members).
func ParseGroup(entry string) (Group, error) {
	if !strings.Contains(entry, ":") {
		if entry == "" {
			return Group{}, errors.Parse("parse group", entry, fmt.Errorf("empty entry"))
		}
		return Group{Name: entry}, nil
	}
	f := strings.Split(entry, ":")
	if len(f) != 4 {
		return Group{}, errors.Parse("parse group", f[0], fmt.Errorf("want 4 fields, got %d", len(f)))
	}
	gid, err := strconv.Atoi(f[2])
	if err != nil {
		return Group{}, errors.Parse("parse group", f[0], fmt.Errorf("invalid gid %q", f[2]))
	}
	g := Group{Name: f[0], GID: gid, Full: true}
	if f[3] != "" {
		g.Members = strings.Split(f[3], ",")
	}
	return g, nil
}

// Provision ensures the groups and then the users pkg requires. Bare names
// are left to the package's own scripts.
func Provision(ctx context.Context, p Provisioner, pkg *model.Package) error {
	for _, entry := range pkg.Groups {
		g, err := ParseGroup(entry)
		if err != nil {
			return err
		}
		if !g.Full {
			logger.Debugf("%s: group %s has no full entry, skipping", pkg.Origin, g.Name)
			continue
		}
		if err := p.EnsureGroup(ctx, g); err != nil {
			return errors.Wrapf(err, "group %s", g.Name)
		}
	}
	for _, entry := range pkg.Users {
		u, err := ParseUser(entry)
		if err != nil {
			return err
		}
		if !u.Full {
			logger.Debugf("%s: user %s has no full entry, skipping", pkg.Origin, u.Name)
			continue
		}
		if err := p.EnsureUser(ctx, u); err != nil {
			return errors.Wrapf(err, "user %s", u.Name)
		}
	}
	return nil
}

// LogProvisioner reports the users and groups it would create without
// touching the system databases.
type LogProvisioner struct{}

// EnsureUser implements Provisioner.
func (LogProvisioner) EnsureUser(_ context.Context, u User) error {
	logger.Notice("user required", logger.Fields{"user": u.Name, "uid": u.UID, "gid": u.GID, "home": u.Home})
	return nil
}

// EnsureGroup implements Provisioner.
func (LogProvisioner) EnsureGroup(_ context.Context, g Group) error {
	logger.Notice("group required", logger.Fields{"group": g.Name, "gid": g.GID, "members": strings.Join(g.Members, ",")})
	return nil
}
