// Package communityworkflows embeds community-contributed workflow definitions.
//
// Community workflows are contributed via PRs and compiled into the binary,
// but kept apart from the built-in set to distinguish governance and origin.
// Users opt in to specific community workflows through the workflows.community
// config field.
package communityworkflows

import (
	"embed"
	"io/fs"
)

//go:embed workflows
var definitions embed.FS

// FS returns the embedded community workflow files, rooted at the directory
// holding the YAML definitions.
func FS() fs.FS {
	sub, err := fs.Sub(definitions, "workflows")
	if err != nil {
		// The directory is embedded at compile time.
		panic(err)
	}
	return sub
}
