package probe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tracefsRoots are the mount points to probe for the tracefs event
// descriptions, in preference order.
var tracefsRoots = []string{
	"/sys/kernel/tracing",
	"/sys/kernel/debug/tracing",
}

// field is one entry of a tracefs event format description.
type field struct {
	Name   string
	Offset int
	Size   int
}

// eventFieldOffset locates a field of a tracepoint's context struct by
// reading the event's tracefs format file. Field offsets vary across kernel
// versions, so they are discovered at runtime rather than hardcoded.
func eventFieldOffset(group, event, fieldName string) (offset, size int, err error) {
	var lastErr error
	for _, root := range tracefsRoots {
		path := filepath.Join(root, "events", group, event, "format")
		f, err := os.Open(path) //nolint:gosec // G304: fixed tracefs paths.
		if err != nil {
			lastErr = err
			continue
		}

		fld, err := findFormatField(f, fieldName)
		_ = f.Close()
		if err != nil {
			return 0, 0, fmt.Errorf("%s: %w", path, err)
		}
		return fld.Offset, fld.Size, nil
	}
	return 0, 0, fmt.Errorf("no tracefs format for %s/%s: %w", group, event, lastErr)
}

// findFormatField parses a tracefs format stream until it finds the named
// field. Format lines look like:
//
//	field:pid_t next_pid;	offset:56;	size:4;	signed:1;
func findFormatField(r io.Reader, name string) (field, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fld, ok := parseFormatLine(scanner.Text())
		if ok && fld.Name == name {
			return fld, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return field{}, err
	}
	return field{}, fmt.Errorf("field %q not found in event format", name)
}

func parseFormatLine(line string) (field, bool) {
	var fld field
	found := false

	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "field:"):
			decl := strings.Fields(strings.TrimPrefix(part, "field:"))
			if len(decl) == 0 {
				return field{}, false
			}
			// Last token of the declaration is the field name; strip
			// any array suffix (e.g. prev_comm[16]).
			name := decl[len(decl)-1]
			if idx := strings.IndexByte(name, '['); idx >= 0 {
				name = name[:idx]
			}
			fld.Name = name
			found = true
		case strings.HasPrefix(part, "offset:"):
			v, err := strconv.Atoi(strings.TrimPrefix(part, "offset:"))
			if err != nil {
				return field{}, false
			}
			fld.Offset = v
		case strings.HasPrefix(part, "size:"):
			v, err := strconv.Atoi(strings.TrimPrefix(part, "size:"))
			if err != nil {
				return field{}, false
			}
			fld.Size = v
		}
	}

	return fld, found
}
