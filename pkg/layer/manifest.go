package layer

import (
	"github.com/BurntSushi/toml"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// rawManifest mirrors the on-disk layer.toml shape. The [env] table mixes
// flat string vars with a path_prepend sub-table; BurntSushi/toml decodes
// the sub-table into a nested map when the target field is `interface{}`,
// so we separate the two by inspecting each value's dynamic type.
type rawManifest struct {
	Layer struct {
		Name        string `toml:"name"`
		Description string `toml:"description"`
		Version     string `toml:"version"`
	} `toml:"layer"`
	Env   map[string]interface{} `toml:"env"`
	Cache struct {
		Paths []string `toml:"paths"`
	} `toml:"cache"`
}

// ParseManifest parses layer.toml content into a types.LayerManifest.
func ParseManifest(content []byte) (types.LayerManifest, error) {
	var raw rawManifest
	if _, err := toml.Decode(string(content), &raw); err != nil {
		return types.LayerManifest{}, minoerrors.ConfigInvalid("layer.toml", err.Error())
	}
	if raw.Layer.Name == "" || raw.Layer.Description == "" || raw.Layer.Version == "" {
		return types.LayerManifest{}, minoerrors.ConfigInvalid("layer.toml", "layer.name, layer.description and layer.version are required")
	}

	vars := map[string]string{}
	var pathPrepend []string
	for k, v := range raw.Env {
		if k == "path_prepend" {
			pathPrepend = decodePathPrepend(v)
			continue
		}
		if s, ok := v.(string); ok {
			vars[k] = s
		}
	}

	return types.LayerManifest{
		Name:        raw.Layer.Name,
		Description: raw.Layer.Description,
		Version:     raw.Layer.Version,
		Env:         vars,
		PathPrepend: pathPrepend,
		CachePaths:  raw.Cache.Paths,
	}, nil
}

func decodePathPrepend(v interface{}) []string {
	table, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := table["dirs"].([]interface{})
	if !ok {
		return nil
	}
	dirs := make([]string, 0, len(raw))
	for _, d := range raw {
		if s, ok := d.(string); ok {
			dirs = append(dirs, s)
		}
	}
	return dirs
}

// PathPrependStr joins a manifest's PATH prepend directories, or returns
// ("", false) when there are none.
func PathPrependStr(m types.LayerManifest) (string, bool) {
	if len(m.PathPrepend) == 0 {
		return "", false
	}
	joined := m.PathPrepend[0]
	for _, d := range m.PathPrepend[1:] {
		joined += ":" + d
	}
	return joined, true
}
