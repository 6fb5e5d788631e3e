/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package version

import (
	"fmt"
)

// ApplicationVersion represents application version.
var ApplicationVersion = NewVersion(0, 1, 0)

// SemanticVersion represents version information with Semantic Versioning specifications.
type SemanticVersion struct {
	major uint
	minor uint
	patch uint
}

// NewVersion initializes a new instance of SemanticVersion.
func NewVersion(major, minor, patch uint) *SemanticVersion {
	return &SemanticVersion{
		major: major,
		minor: minor,
		patch: patch,
	}
}

// String returns a string that represents this instance.
func (v *SemanticVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.major, v.minor, v.patch)
}

// UserAgent returns the HTTP User-Agent value advertised by a product at this version.
func (v *SemanticVersion) UserAgent(product string) string {
	return fmt.Sprintf("%s/%d.%d.%d", product, v.major, v.minor, v.patch)
}
