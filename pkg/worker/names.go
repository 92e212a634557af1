package worker

import (
	"strings"

	"github.com/google/uuid"
)

// Word lists for generated worker names. Short, readable, unembarrassing.
var (
	nameAdjectives = []string{
		"amber", "brisk", "calm", "clever", "deft", "eager", "fleet",
		"gentle", "keen", "lively", "mellow", "nimble", "quiet", "rapid",
		"sturdy", "swift", "tidy", "vivid", "warm", "witty",
	}
	nameAnimals = []string{
		"badger", "crane", "dolphin", "falcon", "heron", "ibex", "lynx",
		"marten", "otter", "panda", "quail", "raven", "seal", "tern",
		"vole", "wren",
	}
)

// GenerateName returns a human-memorable worker name like
// "brisk-otter-3f2a81". The uuid suffix keeps names unique without
// coordination.
func GenerateName() string {
	id := uuid.New()
	suffix := strings.ReplaceAll(id.String(), "-", "")[:6]
	adj := nameAdjectives[int(id[0])%len(nameAdjectives)]
	animal := nameAnimals[int(id[1])%len(nameAnimals)]
	return adj + "-" + animal + "-" + suffix
}
