// Package config contains structs to interact with git configuration
// files.
//
// Lookups aggregate the system, global, and local config files with
// the same precedence git itself uses: a value set in the local file
// overrides the global one, which overrides the system one.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrInvalidBool is returned when a config value cannot be parsed as
// a boolean
var ErrInvalidBool = errors.New("invalid boolean value")

// loadOption contains the params used to load the config files.
// Git section and key names are case-insensitive, and a bare
// "key" with no value is a valid way to spell "key = true"
var loadOption = ini.LoadOptions{
	Insensitive:             true,
	AllowBooleanKeys:        true,
	SkipUnrecognizableLines: true,
}

// FileAggregate represents the aggregate of all the config files
// impacting a repository
type FileAggregate struct {
	// highest precedence first
	sources []*ini.File
}

// LoadFiles loads the provided config files, lowest precedence first
// (the way git lists them: system, then global, then local). Files
// that don't exist are skipped
func LoadFiles(paths ...string) (*FileAggregate, error) {
	agg := &FileAggregate{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		f, err := ini.LoadSources(loadOption, p)
		if err != nil {
			return nil, err
		}
		// prepend so sources[0] has the highest precedence
		agg.sources = append([]*ini.File{f}, agg.sources...)
	}
	return agg, nil
}

// LoadForRepo loads the system, global, and local config files for a
// repository with the given gitdir
func LoadForRepo(gitdir string) (*FileAggregate, error) {
	return LoadFiles(
		systemConfigPath(),
		globalConfigPath(),
		filepath.Join(gitdir, "config"),
	)
}

func systemConfigPath() string {
	if os.Getenv("GIT_CONFIG_NOSYSTEM") != "" {
		return ""
	}
	return "/etc/gitconfig"
}

func globalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "git", "config")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if p := filepath.Join(home, ".gitconfig"); fileExists(p) {
		return p
	}
	return filepath.Join(home, ".config", "git", "config")
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Get returns the raw value of a "section.key" or
// "section.subsection.key" name, and whether it was set in any file
func (cfg *FileAggregate) Get(name string) (value string, ok bool) {
	section, key, ok := splitName(name)
	if !ok {
		return "", false
	}
	for _, src := range cfg.sources {
		if !src.Section(section).HasKey(key) {
			continue
		}
		return src.Section(section).Key(key).String(), true
	}
	return "", false
}

// GetBool parses the value of name following git's boolean rules:
// yes/on/true/1 are true, no/off/false/0 are false, and a bare key
// with no value is true
func (cfg *FileAggregate) GetBool(name string) (value, ok bool, err error) {
	raw, ok := cfg.Get(name)
	if !ok {
		return false, false, nil
	}
	v, err := ParseBool(raw)
	if err != nil {
		return false, true, err
	}
	return v, true, nil
}

// GetInt parses the value of name as a decimal integer
func (cfg *FileAggregate) GetInt(name string) (value int, ok bool, err error) {
	raw, ok := cfg.Get(name)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// ParseBool parses a git boolean literal
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "on", "true", "1":
		return true, nil
	case "no", "off", "false", "0", "":
		return false, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n != 0, nil
	}
	return false, ErrInvalidBool
}

func splitName(name string) (section, key string, ok bool) {
	i := strings.Index(name, ".")
	j := strings.LastIndex(name, ".")
	if i < 0 {
		return "", "", false
	}
	if i == j {
		return name[:i], name[i+1:], true
	}
	// section.subsection.key maps to an ini section named
	// `section "subsection"`
	return name[:i] + ` "` + name[i+1:j] + `"`, name[j+1:], true
}

// GpgSign reports whether new commits should be signed.
// revise.gpgSign overrides commit.gpgSign
func (cfg *FileAggregate) GpgSign() (sign, ok bool) {
	for _, name := range []string{"revise.gpgsign", "commit.gpgsign"} {
		if v, set, err := cfg.GetBool(name); set && err == nil {
			return v, true
		}
	}
	return false, false
}

// SigningProgram returns the executable used to sign commits
func (cfg *FileAggregate) SigningProgram() string {
	if v, ok := cfg.Get("gpg.program"); ok {
		return v
	}
	return "gpg"
}

// SigningKey returns the configured key identifier, if any
func (cfg *FileAggregate) SigningKey() (key string, ok bool) {
	return cfg.Get("user.signingkey")
}

// AutoSquash reports whether interactive mode reorders fixup!/squash!
// commits by default. revise.autoSquash overrides rebase.autoSquash
func (cfg *FileAggregate) AutoSquash() (auto, ok bool) {
	for _, name := range []string{"revise.autosquash", "rebase.autosquash"} {
		if v, set, err := cfg.GetBool(name); set && err == nil {
			return v, true
		}
	}
	return false, false
}

// Rerere reports whether recorded conflict resolutions should be
// replayed. revise.rerere overrides rerere.enabled
func (cfg *FileAggregate) Rerere() (enabled, ok bool) {
	for _, name := range []string{"revise.rerere", "rerere.enabled"} {
		if v, set, err := cfg.GetBool(name); set && err == nil {
			return v, true
		}
	}
	return false, false
}

// RerereAutoUpdate reports whether recorded resolutions are replayed
// without prompting. Defaults to false
func (cfg *FileAggregate) RerereAutoUpdate() bool {
	v, ok, err := cfg.GetBool("rerere.autoupdate")
	return ok && err == nil && v
}

// CommentChar returns the comment character used in edited messages.
// The returned value may be "auto"
func (cfg *FileAggregate) CommentChar() string {
	if v, ok := cfg.Get("core.commentchar"); ok {
		return v
	}
	return "#"
}

// SequenceEditor returns the editor configured for todo lists, if any
func (cfg *FileAggregate) SequenceEditor() (editor string, ok bool) {
	return cfg.Get("sequence.editor")
}
