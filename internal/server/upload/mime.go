package upload

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
)

// mime.types is the packaged extension table, Apache format:
// one MIME type per line followed by the extensions it covers.
//
//go:embed mime.types
var mimeTypesData string

var (
	mimeOnce  sync.Once
	mimeTable map[string]string
)

func mimeTypes() map[string]string {
	mimeOnce.Do(func() {
		table := make(map[string]string)
		sc := bufio.NewScanner(strings.NewReader(mimeTypesData))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Fields(line)
			for _, ext := range fields[1:] {
				table[strings.ToLower(ext)] = fields[0]
			}
		}
		mimeTable = table
	})
	return mimeTable
}

// ResolveContentType maps a filename extension to a MIME type using the
// packaged table, case-insensitively. When the extension is unknown the
// client-declared type is returned unchanged.
func ResolveContentType(filename, declared string) string {
	if typ, ok := mimeTypes()[strings.ToLower(extension(filename))]; ok {
		return typ
	}
	return declared
}

// extension returns the part after the last dot, or "" for names with no
// extension or a trailing dot.
func extension(filename string) string {
	pos := strings.LastIndexByte(filename, '.')
	if pos == -1 || pos == len(filename)-1 {
		return ""
	}
	return filename[pos+1:]
}
