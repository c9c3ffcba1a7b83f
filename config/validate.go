package config

import (
	"fmt"

	"github.com/cratedeb/cratedeb/assets"
	"github.com/cratedeb/cratedeb/cderrors"
)

// ValidateAssets checks the invariants of spec §3/§4.1 that can only be
// verified once the Asset Planner has produced the final AssetList: every
// conf_files entry must name an installed path that the planner actually
// produced.
func ValidateAssets(cfg *PackageConfig, planned assets.AssetList) error {
	installed := make(map[string]bool, len(planned))
	for _, a := range planned {
		installed[a.InstalledPath] = true
	}

	for _, cf := range cfg.ConfFiles {
		if !installed[cf] {
			return &cderrors.ConfigError{Field: "conf_files", Msg: fmt.Sprintf("%q has no matching asset destination", cf)}
		}
	}

	return nil
}
