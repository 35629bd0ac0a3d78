package document

// Merge deep-merges overlay into the document in place. Objects are merged
// key by key, every other value (including arrays) replaces the target.
// Applying the same overlay twice yields the same document as applying it once.
func (d Document) Merge(overlay map[string]any) {
	mergeInto(map[string]any(d), overlay)
}

func mergeInto(dst, src map[string]any) {
	for k, sv := range src {
		srcMap, ok := sv.(map[string]any)
		if !ok {
			dst[k] = Plain(sv)
			continue
		}
		dstMap, ok := dst[k].(map[string]any)
		if !ok {
			dstMap = make(map[string]any, len(srcMap))
			dst[k] = dstMap
		}
		mergeInto(dstMap, srcMap)
	}
}
