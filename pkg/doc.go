// Package pkg provides the libraries behind the pget package manager.
//
// # Overview
//
// pget reads a package.json, resolves every dependency against an npm
// registry, records the decisions in a lockfile and unpacks the result into
// node_modules. The pkg directory is organized by stage:
//
//  1. [manifest] - package.json loading, editing and saving
//  2. [registry] - registry documents with timeout, retry and caching
//  3. [lockfile] - the old and new lock generations
//  4. [resolver] - the dependency walk and flatten/nest placement
//  5. [installer] - tarball download, verification and extraction
//
// Supporting packages: [semver] matches ranges, [cache] stores registry
// documents between runs, [httputil] holds the retry and timeout
// primitives, [observability] exposes hooks and Prometheus metrics, and
// [errors] defines the coded errors every stage returns.
//
// # Architecture
//
//	package.json
//	     ↓
//	[manifest] → [resolver] ⇄ [lockfile]
//	                 ↓   ↘
//	                 ↓    [registry] → [cache]
//	                 ↓
//	            [installer] → node_modules
//
// # Quick Start
//
//	m, _ := manifest.Load("package.json")
//	lock := lockfile.New("pget-store.yaml", nil)
//	lock.Read(ctx)
//
//	client := registry.NewClient(registry.Options{})
//	res, err := resolver.New(client, lock, resolver.Options{}).ResolveManifest(ctx, m)
//	if err != nil {
//	    return err
//	}
//	lock.Write(ctx)
//
//	_, err = installer.New(installer.Options{Root: m.Dir()}).Install(ctx, res)
package pkg
