// Package faults defines the error taxonomy shared by the scanner, meta store,
// processed-file store and encoder.
//
// Each failure is tagged with one sentinel marker (ambiguity, parse, probe,
// external tool, conflict, missing source, storage) so callers can classify it
// with errors.Is without parsing messages. Only storage errors are fatal to a
// batch; every other kind stays local to the item that produced it.
package faults
