// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "fmt"

const (
	appMajor uint = 0
	appMinor uint = 2
	appPatch uint = 0

	// appPreRelease should contain the pre-release name of the
	// application.  It is empty for full releases.
	appPreRelease = "beta"
)

// version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (https://semver.org/).
func version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v = fmt.Sprintf("%s-%s", v, appPreRelease)
	}
	return v
}
