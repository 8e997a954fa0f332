package crawler

import (
	"fmt"
	"regexp"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// Sanitize maps a title to a filesystem-safe file name and appends suffix verbatim.
// Every rune outside [A-Za-z0-9.-] becomes a single underscore.
func Sanitize(title, suffix string) string {
	return invalidFilenameChars.ReplaceAllString(title, "_") + suffix
}

// Suffix returns the positional suffix for the target at index: _1.pdf, _2.pdf, _3.pdf ...
func Suffix(index int, ext string) string {
	return fmt.Sprintf("_%d%s", index+1, ext)
}

// FileName is the stored name for a target of the given item.
func FileName(title string, target DownloadTarget) string {
	return Sanitize(title, Suffix(target.Index, target.Ext))
}
