package keyfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfigFile is the INI-like layout. Keys and values are separated by '='
// or ':', lines starting with '#' or ';' are comments, and a value wrapped
// in braces holds a comma-separated list. Keys before the first section
// header belong to the "" section.
type ConfigFile struct {
	sections
}

// NewConfigFile returns an empty ConfigFile.
func NewConfigFile() *ConfigFile {
	return &ConfigFile{sections: newSections()}
}

// ParseConfig reads a ConfigFile from r.
func ParseConfig(r io.Reader) (*ConfigFile, error) {
	c := NewConfigFile()
	section := ""
	scan := bufio.NewScanner(r)
	for lineNo := 1; scan.Scan(); lineNo++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if strings.HasPrefix(line, "[") {
			end := strings.Index(line, "]")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unterminated section header %q", lineNo, line)
			}
			section = strings.TrimSpace(line[1:end])
			c.addSection(section)
			continue
		}
		sep := strings.IndexAny(line, "=:")
		if sep < 0 {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:sep])
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}
		c.Set(section, key, splitValue(strings.TrimSpace(line[sep+1:]))...)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return c, nil
}

// splitValue expands "{a, b}" into its elements; plain values are returned
// as a single element.
func splitValue(v string) []string {
	if !strings.HasPrefix(v, "{") || !strings.HasSuffix(v, "}") {
		return []string{v}
	}
	inner := strings.TrimSpace(v[1 : len(v)-1])
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// WriteTo implements Store.
func (c *ConfigFile) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	for i, section := range c.order {
		if section != "" {
			if i > 0 {
				cw.printf("\n")
			}
			cw.printf("[%s]\n", section)
		}
		for _, key := range c.keys[section] {
			vals := c.vals[section][key]
			if len(vals) == 1 {
				cw.printf("%s = %s\n", key, vals[0])
			} else {
				cw.printf("%s = {%s}\n", key, strings.Join(vals, ", "))
			}
		}
	}
	return cw.n, cw.err
}
