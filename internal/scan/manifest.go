package scan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mediaprep/internal/faults"
)

// readManifest returns the member file names listed by a YAML manifest. A
// manifest is a sequence of names or a mapping whose string values are names.
func readManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrParse, "scan", "read manifest", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, faults.Wrap(faults.ErrParse, "scan", "decode manifest", path, err)
	}

	var names []string
	switch v := doc.(type) {
	case nil:
	case []any:
		for i, entry := range v {
			name, ok := entry.(string)
			if !ok {
				return nil, faults.Wrap(faults.ErrParse, "scan", "decode manifest",
					fmt.Sprintf("%s: entry %d is %T, want file name", path, i, entry), nil)
			}
			names = append(names, name)
		}
	case map[string]any:
		for _, entry := range v {
			if name, ok := entry.(string); ok {
				names = append(names, name)
			}
		}
	default:
		return nil, faults.Wrap(faults.ErrParse, "scan", "decode manifest",
			fmt.Sprintf("%s: top level is %T, want list or mapping", path, doc), nil)
	}
	return names, nil
}
