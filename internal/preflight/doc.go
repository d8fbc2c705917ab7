// Package preflight provides readiness checks for the directories and
// external services mediaprep depends on.
//
// These checks run in two contexts:
//   - The batch runner calls RunAll before encoding so an unwritable store
//     fails the run up front instead of failing every item.
//   - The CLI "mediaprep doctor" command prints every result, plus the binary
//     availability from CheckSystemDeps.
//
// Notification checks are skipped when no ntfy topic is configured.
package preflight
