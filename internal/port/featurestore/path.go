package featurestore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Strob0t/sddflow/internal/domain"
)

// Resolve joins a feature-relative path onto dir. Absolute paths and paths
// escaping dir are rejected with domain.ErrValidation.
func Resolve(dir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s must be relative: %w", rel, domain.ErrValidation)
	}
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if p != dir && !strings.HasPrefix(p, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes feature dir: %w", rel, domain.ErrValidation)
	}
	return p, nil
}
