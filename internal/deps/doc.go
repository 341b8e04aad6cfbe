// Package deps reports whether the external programs and device nodes
// facewatch relies on are present: the engine interpreter (and optional
// launcher), the engine script, ffmpeg, and the capture device.
package deps
