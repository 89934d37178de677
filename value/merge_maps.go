package value

// MergeMaps merges mapping values into one new mapping. Later sources
// win when keys collide; insertion order follows the first appearance
// of each key. Sources that are not mappings are skipped. A single
// source is returned unchanged.
func MergeMaps(sources ...Value) Value {
	if len(sources) == 1 {
		return sources[0]
	}
	merged := NewDict()
	for _, src := range sources {
		d, ok := src.AsDict()
		if !ok {
			continue
		}
		for k, v := range d.All() {
			merged.Set(k, v)
		}
	}
	return FromDict(merged)
}
