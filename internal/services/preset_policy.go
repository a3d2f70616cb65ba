package services

import (
	"errors"
	"path"
	"strings"

	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/remote"
	"github.com/pandeptwidyaop/macrosync/internal/validation"
)

// DefaultPresetName is the display name of the active document.
const DefaultPresetName = "default"

// ErrOutsidePresetSet is returned for names the preset listing would never show.
var ErrOutsidePresetSet = errors.New("name does not match the preset naming rules")

// PresetPolicy is the naming rule set shared by list, load, save, apply and delete.
type PresetPolicy struct {
	Dir            string
	ActiveFile     string
	ActiveAlias    string
	Prefix         string
	RequirePrefix  bool
	Glob           string
	DefaultNewName string
	Protected      []string
}

// NewPresetPolicy builds a policy from the store configuration.
func NewPresetPolicy(cfg config.StoreConfig) *PresetPolicy {
	return &PresetPolicy{
		Dir:            strings.TrimRight(cfg.Dir, "/"),
		ActiveFile:     cfg.ActiveFile,
		ActiveAlias:    cfg.ActiveAlias,
		Prefix:         cfg.Prefix,
		RequirePrefix:  cfg.PrefixRequired(),
		Glob:           cfg.Glob,
		DefaultNewName: cfg.DefaultNewName,
		Protected:      cfg.Protected,
	}
}

// Normalize turns operator input into a preset file name: blank input becomes
// the default new name, the ".json" extension is added or lower-cased and,
// when the policy requires it, the prefix is added. The result is always a
// name that Accepts, so whatever is saved shows up in the listing.
func (p *PresetPolicy) Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = p.DefaultNewName
	}
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		name = name[:len(name)-len(".json")]
	}
	name += ".json"
	if p.RequirePrefix && !p.isActiveName(name) && !strings.HasPrefix(name, p.Prefix) {
		name = p.Prefix + name
	}
	if err := validation.ValidatePresetFileName(name); err != nil {
		return "", err
	}
	if !p.Accepts(name) {
		return "", ErrOutsidePresetSet
	}
	return name, nil
}

// Resolve maps an operator-supplied preset reference to a file name.
// The reserved display name "default" refers to the active document.
func (p *PresetPolicy) Resolve(name string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(name), DefaultPresetName) {
		return p.ActiveFile, nil
	}
	return p.Normalize(name)
}

// DisplayName derives the short name shown for a preset file.
func (p *PresetPolicy) DisplayName(file string) string {
	base := path.Base(strings.TrimSpace(file))
	if base == p.ActiveFile {
		return DefaultPresetName
	}
	if strings.HasSuffix(strings.ToLower(base), ".json") {
		base = base[:len(base)-len(".json")]
	}
	return strings.TrimPrefix(base, p.Prefix)
}

// IsProtected reports whether file may never be deleted or overwritten.
func (p *PresetPolicy) IsProtected(file string) bool {
	base := path.Base(strings.TrimSpace(file))
	if p.isActiveName(base) {
		return true
	}
	for _, name := range p.Protected {
		if strings.EqualFold(base, name) {
			return true
		}
	}
	return false
}

func (p *PresetPolicy) isActiveName(name string) bool {
	return strings.EqualFold(name, p.ActiveFile) || (p.ActiveAlias != "" && strings.EqualFold(name, p.ActiveAlias))
}

// Path returns the remote path of a file in the store directory.
func (p *PresetPolicy) Path(file string) string {
	return p.Dir + "/" + file
}

// ActivePath returns the remote path of the active document.
func (p *PresetPolicy) ActivePath() string {
	return p.Path(p.ActiveFile)
}

// TmpPath returns the temporary path used while replacing file.
func (p *PresetPolicy) TmpPath(file string) string {
	return p.Path(file) + ".tmp"
}

// ListCommand lists files matching the preset glob. A glob with no matches
// prints nothing and still exits zero.
func (p *PresetPolicy) ListCommand() string {
	return "ls -1 " + remote.Quote(p.Dir) + "/" + p.Glob + " 2>/dev/null || true"
}

// Accepts reports whether a listed file belongs to the preset set. The
// active document and its alias always do.
func (p *PresetPolicy) Accepts(file string) bool {
	if p.isActiveName(file) {
		return true
	}
	if ok, err := path.Match(p.Glob, file); err != nil || !ok {
		return false
	}
	return !p.RequirePrefix || strings.HasPrefix(file, p.Prefix)
}

// WriteCommand builds the crash-safe replace pipeline for file: stdin is
// written to a temporary file which is then renamed over the target.
func (p *PresetPolicy) WriteCommand(file string) string {
	tmp, dst := remote.Quote(p.TmpPath(file)), remote.Quote(p.Path(file))
	return "mkdir -p " + remote.Quote(p.Dir) + " && cat > " + tmp + " && mv " + tmp + " " + dst
}

// CopyCommand replaces dst with a copy of src using the same temp-then-rename pattern.
func (p *PresetPolicy) CopyCommand(src, dst string) string {
	tmp := remote.Quote(p.TmpPath(dst))
	return "cp " + remote.Quote(p.Path(src)) + " " + tmp + " && mv " + tmp + " " + remote.Quote(p.Path(dst))
}
