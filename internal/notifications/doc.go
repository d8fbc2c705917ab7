// Package notifications delivers batch events via ntfy.
//
// The ntfy implementation publishes to the topic URL configured in
// config.toml and degrades to a no-op when no topic is set. Workflow code
// depends only on the Service interface.
package notifications
