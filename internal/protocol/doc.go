// Package protocol defines the newline-delimited JSON command protocol
// spoken over the local TCP socket: the closed set of command kinds, their
// validation rules, reply records, and the asynchronous transcript update
// records pushed to stream owners.
package protocol
