// Package version holds the runtime version and the compatibility rule for
// ahead-of-time compiled modules.
package version

import (
	"github.com/blang/semver"
	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/errcode"
)

// Version is the semantic version of this runtime. Compiled shared objects
// embed the version of the runtime that produced them.
const Version = "0.5.0"

// CheckCompiled verifies a compiled module's embedded version is usable by
// this runtime: the major and minor components must match exactly, so a
// patch-level difference is tolerated but nothing else.
func CheckCompiled(v string) error {
	ours, err := semver.Parse(Version)
	if err != nil {
		return errors.Wrap(err, "runtime version")
	}
	theirs, err := semver.Parse(v)
	if err != nil {
		return errors.Wrapf(errcode.ErrInvalidVersion, "unparsable compiled module version %q", v)
	}
	if theirs.Major != ours.Major || theirs.Minor != ours.Minor {
		return errors.Wrapf(errcode.ErrInvalidVersion, "compiled module version %s, runtime %s", v, Version)
	}
	return nil
}
