// Package security summarizes an engine configuration as a posture report
// that operators can log or expose.
//
// # What this package must NOT do
//
//   - Read live state. The report is derived from configuration only.
package security
