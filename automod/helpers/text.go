package helpers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spaolacci/murmur3"
)

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
var urlRegex = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

// @mentions, #hashtags, and /commands (including the "/cmd@botname" form)
var handleRegex = regexp.MustCompile(`(?:^|\s)[@#/][\p{L}\p{N}_@]+`)

// Strips out URLs, mentions, hashtags, and bot commands, and collapses whitespace. What remains is the
// natural-language part of a message, suitable for language identification.
func NaturalText(raw string) string {
	s := urlRegex.ReplaceAllString(raw, " ")
	s = handleRegex.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
