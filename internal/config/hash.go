package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashConfig returns a stable hash of the marshaled config, used to skip
// redundant reload publishes. Nil or unmarshalable configs hash to 0.
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
