// Package main hosts the mediaprep CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds the slog logger
// and hands the heavy lifting to internal packages: scanning, batch encoding,
// watching, verification and pruning of the processed tree, run history and
// environment checks.
//
// Keep this package lean: add functionality in the internal packages first,
// then surface it through a dedicated command or flag here.
package main
