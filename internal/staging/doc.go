// Package staging owns the per-item scratch directories used while encoding.
//
// Each item gets a uniquely named directory under staging_dir that is removed
// on every exit path. CleanStale reclaims directories left behind by killed
// processes, and ListDirectories feeds the status command.
package staging
