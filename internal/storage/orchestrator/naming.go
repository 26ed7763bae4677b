package orchestrator

import (
	"fmt"
	"path/filepath"
)

// NamingPolicy maps a feature to its storage directories
type NamingPolicy struct {
	Version string
}

// DefaultNamingPolicy produces <feature>_v2 and <feature>_pending_v2
var DefaultNamingPolicy = NamingPolicy{Version: "v2"}

// GrantedDir is where uploadable batches of feature live
func (n NamingPolicy) GrantedDir(root, feature string) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", feature, n.Version))
}

// PendingDir is where batches wait for consent
func (n NamingPolicy) PendingDir(root, feature string) string {
	return filepath.Join(root, fmt.Sprintf("%s_pending_%s", feature, n.Version))
}
