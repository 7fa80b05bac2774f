package alias

import (
	"encoding/json"
	"fmt"
)

// encodePairs unrolls entries into the persisted pair list: for every entry
// [original, token] followed by [token, original].
func encodePairs(entries []Entry) (string, error) {
	pairs := make([][2]string, 0, len(entries)*2)
	for _, e := range entries {
		pairs = append(pairs, [2]string{e.Original, e.Token}, [2]string{e.Token, e.Original})
	}

	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("failed to encode alias pairs: %w", err)
	}
	return string(data), nil
}

// decodePairs parses the persisted pair list. Pairs whose key is a token are
// the reverse half of the map and are rebuilt from the forward pairs.
func decodePairs(data string) ([][2]string, error) {
	var raw [][]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("malformed alias list: %w", err)
	}

	pairs := make([][2]string, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("malformed alias list: entry %d has %d elements", i, len(p))
		}
		pairs = append(pairs, [2]string{p[0], p[1]})
	}
	return pairs, nil
}
