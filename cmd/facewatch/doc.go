// Command facewatch identifies registered subjects from images, videos and a
// live webcam by driving an external face recognition engine.
//
// Usage:
//
//	facewatch serve                       run the HTTP control surface
//	facewatch identify image <path>       identify a still image
//	facewatch identify video <path>       identify a video file
//	facewatch webcam                      scan the live camera until a match
//	facewatch enroll --name N --photo P   register a subject
//	facewatch record show <id>            print one record
//	facewatch record list                 list every record
//	facewatch doctor                      check external dependencies
//	facewatch config init|validate        manage the configuration file
//
// One-shot commands start the engine in-process and wait for a terminal
// outcome; --wait bounds how long they wait.
package main
