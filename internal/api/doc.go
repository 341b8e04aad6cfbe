// Package api exposes the identification coordinator over HTTP.
//
// # Routes
//
//	GET    /health                       liveness check
//	GET    /api/status                   workflow snapshots and dependency report
//	POST   /api/identify/{image|video}   start identification of {"path": ...}
//	DELETE /api/identify/{image|video}   reset the workflow to idle
//	POST   /api/webcam/{on|off|reset}    drive live scanning
//	GET    /api/webcam/frame             latest preview frame as image/jpeg
//	GET    /api/records/{id}             one subject record
//	POST   /api/records                  enroll a subject
//	GET    /metrics                      Prometheus exposition
//
// Operations return as soon as the coordinator accepts them. Clients poll
// /api/status for the outcome; nothing in this package waits on the engine.
//
// # Errors
//
// Every error body is {"error": "..."}. Coordinator sentinels map to status
// codes in statusFor: a busy engine or in-flight request is 409, a missing
// camera is 503, a failed engine write is 502 and a missing record is 404.
package api
