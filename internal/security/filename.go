package security

import "regexp"

// maxFileIDLength bounds the identifier part of generated file names.
const maxFileIDLength = 100

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SafeFileID maps an untrusted identifier onto [a-zA-Z0-9_-] so it can be
// used as part of a file name. Every other character becomes '_'.
func SafeFileID(id string) string {
	if len(id) > maxFileIDLength {
		id = id[:maxFileIDLength]
	}
	safe := unsafeFileChars.ReplaceAllString(id, "_")
	if safe == "" {
		return "_"
	}
	return safe
}
