// Package encoding turns a scanned source collection into its content-addressed
// artifacts.
//
// Encoder.Encode runs a fixed sequence of steps for one item: derive the
// source hash, render the primary video, export the SRT track, render the
// preview, extract thumbnails and copy tags. Steps that find their artifact
// already published are skipped, so re-running an unchanged item invokes no
// external tools. The first failing step ends the item; the meta record's
// pending actions are cleared and saved only when every step succeeds.
//
// Scratch files live in a per-item staging work dir that is removed on every
// exit path. Artifacts are published by moving finished files into the
// processed store, never by writing in place.
package encoding
