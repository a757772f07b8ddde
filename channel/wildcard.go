package channel

// Match implements MQTT topic-matching rules between a subscription
// pattern and a concrete channel: '+' matches exactly one non-empty
// level, '#' matches zero or more trailing levels and may only appear
// as the final level of pattern.
//
// Extracted as a pure predicate rather than a storage trie, since the
// router needs "does this pattern match this channel" rather than a
// subscription tree.
func Match(pattern, ch string) bool {
	pToks := Split(pattern)
	cToks := Split(ch)

	i := 0
	for ; i < len(pToks); i++ {
		p := pToks[i]

		if p == "#" {
			// '#' must be the final level of the pattern.
			return i == len(pToks)-1
		}

		if i >= len(cToks) {
			return false
		}

		if p == "+" {
			if cToks[i] == "" {
				return false
			}
			continue
		}

		if p != cToks[i] {
			return false
		}
	}

	return i == len(cToks)
}
