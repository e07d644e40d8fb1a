// Package export writes the final body of every flattened rule to a local
// file for inspection. It is a side export only; nothing in the pipeline
// reads the files back.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// SaveRuleBodies writes one file per rule with a non-empty body into dir.
// Files are named {sanitized group full name}__{rule name}. The directory
// must not already exist; an earlier export is never overwritten.
func SaveRuleBodies(dir string, groups []*rules.RuleGroup, logger *zap.Logger) error {
	if err := os.Mkdir(dir, 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	for _, g := range groups {
		for _, r := range g.Rules {
			if r.Source == "" {
				continue
			}
			name := rules.SanitizeFullName(g.FullName) + "__" + r.Name
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(r.Source), 0644); err != nil {
				return fmt.Errorf("write rule body %s: %w", name, err)
			}
			logger.Debug("Exported rule body", zap.String("path", path))
		}
	}
	return nil
}
