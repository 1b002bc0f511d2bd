// Package attach resolves image attachment glob patterns into request
// attachments, enforcing the count and per-file size limits before
// anything reaches a provider.
package attach

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/refinekit/refine"
)

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Resolve expands the glob patterns (doublestar syntax, ** supported)
// and reads the matched image files. Non-image matches are rejected, as
// are more than refine.MaxAttachments files or any file over
// refine.MaxAttachmentSize.
func Resolve(patterns []string) ([]refine.Attachment, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	if len(paths) > refine.MaxAttachments {
		return nil, fmt.Errorf("at most %d attachments allowed, matched %d files", refine.MaxAttachments, len(paths))
	}

	atts := make([]refine.Attachment, 0, len(paths))
	for _, path := range paths {
		mime, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil, fmt.Errorf("%s: unsupported attachment type", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() > refine.MaxAttachmentSize {
			return nil, fmt.Errorf("%s exceeds %d bytes", path, refine.MaxAttachmentSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		atts = append(atts, refine.Attachment{
			Name:     filepath.Base(path),
			MimeType: mime,
			Data:     data,
		})
	}
	return atts, nil
}
