// Package fileutil holds small file helpers shared by the camera, record
// photo cache and webcam match snapshots.
package fileutil
