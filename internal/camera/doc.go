// Package camera owns the capture device.
//
// Device and Handle abstract the hardware; FFmpegDevice implements them for
// V4L2 nodes by streaming MJPEG out of ffmpeg. Arbiter hands the single open
// Handle to either the live preview pump or a one-shot capture, never both.
// HotplugWatcher reports video4linux add/remove uevents for the configured node.
package camera
