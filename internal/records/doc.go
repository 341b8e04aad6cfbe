// Package records persists subject records and their photos in SQLite.
//
// Identification workflows look records up by the subject id the engine
// reports; enrollment adds records and photos before announcing them to the
// engine. MaterializePhotos writes stored photo blobs to disk for display.
package records
