package rules

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

// PacksDirName is the directory, next to the main rule file, holding extra
// rule documents contributed by plugins or teams.
const PacksDirName = "skill-rules.d"

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Enabled     bool
	Path        string
	SkillCount  int
	Err         error
}

// PacksDir returns the pack directory that belongs to a rule file.
func PacksDir(rulesPath string) string {
	return filepath.Join(filepath.Dir(rulesPath), PacksDirName)
}

// LoadPacks reads every rule document in packsDir and merges the enabled
// ones into base. A pack is disabled when its file name starts with an
// underscore. Pack skills replace base skills of the same name, in file
// name order. A pack that cannot be decoded fails the whole load, but its
// PackInfo is still returned with Err set.
func LoadPacks(packsDir string, base *Document) (*Document, []PackInfo, []Warning, error) {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil, nil
		}
		return nil, nil, nil, skerrors.Wrapf(err, "reading packs dir %s", packsDir)
	}

	sort.Slice(entries, func(i, j int) bool {
		return packName(entries[i].Name()) < packName(entries[j].Name())
	})

	result := cloneDocument(base)
	var infos []PackInfo
	var warnings []Warning
	var firstErr error

	for _, entry := range entries {
		if entry.IsDir() || !IsRuleFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		name := packName(entry.Name())
		enabled := !strings.HasPrefix(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())), "_")

		pack, err := ReadDocument(path)
		if err != nil {
			infos = append(infos, PackInfo{Name: name, Enabled: enabled, Path: path, Err: err})
			if enabled && firstErr == nil {
				firstErr = err
			}
			continue
		}

		infos = append(infos, PackInfo{
			Name:        name,
			Description: pack.Description,
			Version:     pack.Version,
			Enabled:     enabled,
			Path:        path,
			SkillCount:  len(pack.Skills),
		})

		if !enabled {
			continue
		}
		warnings = append(warnings, mergePackInto(result, pack, name)...)
	}

	if firstErr != nil {
		return nil, infos, warnings, firstErr
	}
	return result, infos, warnings, nil
}

// IsRuleFile reports whether a file name has a supported rule extension.
func IsRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// packName strips the extension and the disabling underscore.
func packName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return strings.TrimPrefix(base, "_")
}

func mergePackInto(target *Document, pack *Document, packName string) []Warning {
	var warnings []Warning
	names := make([]string, 0, len(pack.Skills))
	for name := range pack.Skills {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, exists := target.Skills[name]; exists {
			warnings = append(warnings, Warning{
				Rule:    name,
				Message: "replaced by pack " + packName,
			})
		}
		target.Skills[name] = pack.Skills[name]
	}
	return warnings
}

func cloneDocument(d *Document) *Document {
	clone := &Document{
		Version:     d.Version,
		Description: d.Description,
		Skills:      make(map[string]*SkillRule, len(d.Skills)),
	}
	for name, rule := range d.Skills {
		clone.Skills[name] = rule
	}
	return clone
}
