// Package security derives the configuration posture report returned by
// Engine.SecurityReport.
package security
