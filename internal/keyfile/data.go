package keyfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DataFile is the tag-delimited layout. Each key opens with "<key>" on its
// own line (trailing text after the tag is ignored) and its values follow
// one per line until "</key>". An opening tag while another key is open
// closes the previous key.
type DataFile struct {
	sections
}

// NewDataFile returns an empty DataFile.
func NewDataFile() *DataFile {
	return &DataFile{sections: newSections()}
}

// ParseData reads a DataFile from r.
func ParseData(r io.Reader) (*DataFile, error) {
	d := NewDataFile()
	section, key := "", ""
	open := false

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNo := 1; scan.Scan(); lineNo++ {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "</"):
			open = false
		case strings.HasPrefix(line, "<"):
			end := strings.Index(line, ">")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unterminated tag %q", lineNo, line)
			}
			key = line[1:end]
			d.addSection(section)
			d.Set(section, key)
			open = true
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section = strings.TrimSpace(line[1 : len(line)-1])
			d.addSection(section)
			open = false
		case open:
			d.appendValue(section, key, line)
		default:
			return nil, fmt.Errorf("line %d: value %q outside of a key", lineNo, line)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	return d, nil
}

// WriteTo implements Store.
func (d *DataFile) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	for _, section := range d.order {
		if section != "" {
			cw.printf("[%s]\n", section)
		}
		for _, key := range d.keys[section] {
			cw.printf("<%s>\n", key)
			for _, v := range d.vals[section][key] {
				cw.printf("%s\n", v)
			}
			cw.printf("</%s>\n", key)
		}
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}
