package app

import (
	"os"
	"path/filepath"
)

// Paths holds all resolved paths under the avc state directory.
type Paths struct {
	Home    string // .avc directory
	Etc     string // .avc/etc
	Rules   string // .avc/etc/rules
	Var     string // .avc/var
	Reports string // .avc/var/reports
	Archive string // .avc/var/archive

	// Key files
	Setting   string // .avc/setting.json
	Progress  string // .avc/var/progress.json
	History   string // .avc/var/history.json
	Usage     string // .avc/var/usage.json
	StateLock string // .avc/var/state.lock
}

// ResolvePaths returns all paths based on the AVC_HOME environment variable.
func ResolvePaths() Paths {
	home := os.Getenv("AVC_HOME")
	if home == "" {
		home = ".avc"
	}
	return ResolvePathsFrom(home)
}

// ResolvePathsFrom builds the path set rooted at an explicit home directory.
func ResolvePathsFrom(home string) Paths {
	p := Paths{
		Home: home,
		Etc:  filepath.Join(home, "etc"),
		Var:  filepath.Join(home, "var"),
	}

	p.Rules = filepath.Join(p.Etc, "rules")
	p.Reports = filepath.Join(p.Var, "reports")
	p.Archive = filepath.Join(p.Var, "archive")

	p.Setting = filepath.Join(home, "setting.json")
	p.Progress = filepath.Join(p.Var, "progress.json")
	p.History = filepath.Join(p.Var, "history.json")
	p.Usage = filepath.Join(p.Var, "usage.json")
	p.StateLock = filepath.Join(p.Var, "state.lock")

	return p
}
