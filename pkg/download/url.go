// Package download materializes items to local storage: canonical URL
// derivation, deterministic filenames, on-disk duplicate reconciliation,
// the transfer itself, and the bounded-concurrency scheduler driving it.
package download

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/indigoray/civitai-downloader/pkg/items"
)

// DefaultMediaBaseURL is the image delivery host, including the fixed
// environment prefix embedded in every delivery URL.
const DefaultMediaBaseURL = "https://image.civitai.com/xG1nkqKTMzGDvpLrqFT7WA"

// maxFileNameLen is the ceiling after which the name portion is truncated.
const maxFileNameLen = 200

// truncatedNameLen is how much of the name portion survives truncation.
const truncatedNameLen = 100

// ResolveURLs derives the canonical maximum-resolution download URL for an
// item, and the fallback URL to try when the canonical one is rejected.
//
// An opaque storage token (no URL scheme) is expanded against the media
// base host with an original=true segment and a filename hint. A full URL
// carrying a width=N path segment has that segment rewritten to
// original=true. The fallback is the unmodified original reference, only
// when it is itself a full URL distinct from the canonical one.
func ResolveURLs(it items.Item, mediaBase string) (canonical, fallback string) {
	if mediaBase == "" {
		mediaBase = DefaultMediaBaseURL
	}
	ref := it.RemoteRef

	if !isFullURL(ref) {
		hint := it.DisplayName
		if hint == "" {
			if it.IsVideo() {
				hint = "video.mp4"
			} else {
				hint = "image.png"
			}
		}
		return strings.TrimSuffix(mediaBase, "/") + "/" + ref + "/original=true/" + hint, ""
	}

	if strings.Contains(ref, "/width=") {
		parts := strings.Split(ref, "/")
		for i, part := range parts {
			if strings.HasPrefix(part, "width=") {
				parts[i] = "original=true"
			}
		}
		canonical = strings.Join(parts, "/")
		if canonical != ref {
			return canonical, ref
		}
	}

	return ref, ""
}

// ResolveExtension determines the file extension for an item. Video
// signals (mime type, kind, .mp4 URL) take precedence over any suffix in
// the URL; otherwise the trailing path segment's dot-suffix is used, with
// png as the default.
func ResolveExtension(it items.Item) string {
	if it.IsVideo() || strings.HasSuffix(it.RemoteRef, ".mp4") {
		return "mp4"
	}

	last := it.RemoteRef
	if i := strings.LastIndex(last, "/"); i >= 0 {
		last = last[i+1:]
	}
	if i := strings.Index(last, "?"); i >= 0 {
		last = last[:i]
	}
	if i := strings.LastIndex(last, "."); i >= 0 && i < len(last)-1 {
		return last[i+1:]
	}

	return "png"
}

// FileName composes the deterministic local filename for an item:
// "{owner_}{name}_{id}.{ext}". The id suffix always survives truncation so
// reconciliation can recover the file by identity.
func FileName(it items.Item) string {
	name := sanitize(it.DisplayName, false)
	if name == "" {
		name = fmt.Sprintf("image_%d", it.ID)
	}
	owner := sanitize(it.OwnerName, false)
	ext := ResolveExtension(it)

	stem := name
	if owner != "" {
		stem = owner + "_" + name
	}

	filename := sanitize(fmt.Sprintf("%s_%d.%s", stem, it.ID, ext), true)
	if len([]rune(filename)) > maxFileNameLen {
		runes := []rune(stem)
		if len(runes) > truncatedNameLen {
			runes = runes[:truncatedNameLen]
		}
		filename = fmt.Sprintf("%s_%d.%s", string(runes), it.ID, ext)
	}

	return filename
}

// sanitize keeps letters, digits, space, hyphen and underscore (plus the
// dot when allowDot is set) and trims surrounding whitespace.
func sanitize(s string, allowDot bool) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune(r)
		case r == '.' && allowDot:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// isFullURL reports whether ref carries an HTTP scheme, as opposed to an
// opaque storage token.
func isFullURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
