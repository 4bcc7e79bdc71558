// Package albumart fetches the album art of each speaker's current track
// and keeps one PNG per speaker on disk for the host to serve.
//
// PNG art is stored as fetched. JPEG art is decoded and re-encoded as PNG.
// Anything else, and any fetch failure, clears the stored file so the
// host never shows art from a previous track.
//
// Files live at <dir>/<device id>/album.png and are referenced by
// <prefix>/<device id>/album.png?v=<hash of the art URI>. The query
// changes with the art, so a host property changes with it too.
package albumart
