package lockfile

import "github.com/matzehuels/pget/pkg/registry"

// merge copies the non-empty fields of src over dst.
func merge(dst *registry.VersionRecord, src registry.VersionRecord) {
	setString(&dst.Name, src.Name)
	setString(&dst.Version, src.Version)
	setString(&dst.Description, src.Description)
	setString(&dst.Main, src.Main)
	setString(&dst.ID, src.ID)
	setString(&dst.NpmVersion, src.NpmVersion)
	setString(&dst.NodeVersion, src.NodeVersion)
	if src.NodeSupported {
		dst.NodeSupported = true
	}
	if src.Dependencies != nil {
		dst.Dependencies = src.Dependencies
	}
	if src.DevDependencies != nil {
		dst.DevDependencies = src.DevDependencies
	}
	setString(&dst.Dist.Tarball, src.Dist.Tarball)
	setString(&dst.Dist.Shasum, src.Dist.Shasum)
	setString(&dst.Dist.Integrity, src.Dist.Integrity)
	if src.Engines != nil {
		dst.Engines = src.Engines
	}
	if src.Directories != nil {
		dst.Directories = src.Directories
	}
	if src.Keywords != nil {
		dst.Keywords = src.Keywords
	}
	if src.Author != nil {
		dst.Author = src.Author
	}
	if src.Contributors != nil {
		dst.Contributors = src.Contributors
	}
	if src.Repository != nil {
		dst.Repository = src.Repository
	}
	if src.Scripts != nil {
		dst.Scripts = src.Scripts
	}
	if src.Deprecated != "" {
		dst.Deprecated = src.Deprecated
	}
}

func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
