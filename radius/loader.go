package radius

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadDictionaryFile parses a FreeRADIUS-style dictionary file from
// the local filesystem, following $INCLUDE directives relative to
// each file's own directory.
func LoadDictionaryFile(path string) (*Dictionary, error) {
	d := NewDictionary()
	if err := loadInto(d, osOpener{}, path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDictionaryFS is the same loader operating against an fs.FS (for
// example a go:embed bundle), so a default dictionary can ship inside
// the binary.
func LoadDictionaryFS(fsys fs.FS, path string) (*Dictionary, error) {
	d := NewDictionary()
	if err := loadInto(d, fsOpener{fsys}, path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return d, nil
}

// opener abstracts over os.Open and fs.FS.Open so the same line
// scanner serves both entry points.
type opener interface {
	open(path string) (io.ReadCloser, error)
	dir(path string) string
}

type osOpener struct{}

func (osOpener) open(path string) (io.ReadCloser, error) { return os.Open(path) }
func (osOpener) dir(path string) string                  { return filepath.Dir(path) }

type fsOpener struct{ fsys fs.FS }

func (o fsOpener) open(path string) (io.ReadCloser, error) { return o.fsys.Open(path) }
func (fsOpener) dir(path string) string                    { return filepath.ToSlash(filepath.Dir(path)) }

// loaderState tracks the BEGIN-VENDOR/END-VENDOR nesting (depth 1: a
// vendor block cannot itself contain another) while scanning a single
// dictionary file and its includes.
type loaderState struct {
	currentVendor *Vendor // nil outside a BEGIN-VENDOR block
}

func loadInto(d *Dictionary, op opener, path string, visited map[string]bool) error {
	abs := normalizePath(path)
	if visited[abs] {
		return nil // cycle: silently skip, already loaded
	}
	visited[abs] = true

	f, err := op.open(path)
	if err != nil {
		return fmt.Errorf("opening dictionary %s: %w", path, err)
	}
	defer f.Close()

	st := loaderState{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if cpos := strings.IndexByte(line, '#'); cpos >= 0 {
			line = line[:cpos]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		words := strings.Fields(line)
		if err := processLine(d, &st, op, path, words, visited); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading dictionary %s: %w", path, err)
	}

	return nil
}

func normalizePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func processLine(d *Dictionary, st *loaderState, op opener, currentPath string, words []string, visited map[string]bool) error {
	switch words[0] {
	case "$INCLUDE":
		if len(words) < 2 {
			return fmt.Errorf("malformed $INCLUDE")
		}
		includePath := words[1]
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(op.dir(currentPath), includePath)
		}
		if err := loadInto(d, op, includePath, visited); err != nil {
			// A missing include file is skipped (no warning is
			// emitted); any other error in an included file fails
			// the load.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return nil

	case "VENDOR":
		if len(words) < 3 {
			return fmt.Errorf("malformed VENDOR")
		}
		id, err := parseIntLiteral(words[2])
		if err != nil {
			return fmt.Errorf("malformed VENDOR id %q: %w", words[2], err)
		}
		v := Vendor{ID: uint32(id), Name: words[1], TypeSize: 1, LengthSize: 1}
		for _, w := range words[3:] {
			if strings.HasPrefix(w, "format=") {
				if err := parseVendorFormat(&v, strings.TrimPrefix(w, "format=")); err != nil {
					return err
				}
			}
		}
		return d.addVendor(v)

	case "BEGIN-VENDOR":
		if len(words) < 2 {
			return fmt.Errorf("malformed BEGIN-VENDOR")
		}
		v, ok := d.vendorsByName[words[1]]
		if !ok {
			return fmt.Errorf("BEGIN-VENDOR references undeclared vendor %q", words[1])
		}
		st.currentVendor = v
		return nil

	case "END-VENDOR":
		st.currentVendor = nil
		return nil

	case "ATTRIBUTE":
		return processAttribute(d, st.currentVendor, words)

	case "VENDORATTR":
		if len(words) < 5 {
			return fmt.Errorf("malformed VENDORATTR")
		}
		vendorID, err := parseIntLiteral(words[1])
		if err != nil {
			return fmt.Errorf("malformed VENDORATTR vendor id %q: %w", words[1], err)
		}
		v, ok := d.vendorsByID[uint32(vendorID)]
		if !ok {
			return fmt.Errorf("VENDORATTR references undeclared vendor %d", vendorID)
		}
		// Re-shape as an ATTRIBUTE line: name type data-type [flags]
		attrWords := append([]string{"ATTRIBUTE"}, words[2:]...)
		return processAttribute(d, v, attrWords)

	case "VALUE":
		return processValue(d, words)
	}

	return nil
}

func processAttribute(d *Dictionary, vendor *Vendor, words []string) error {
	if len(words) < 4 {
		return fmt.Errorf("malformed ATTRIBUTE")
	}
	typeCode, err := parseIntLiteral(words[2])
	if err != nil {
		return fmt.Errorf("malformed ATTRIBUTE type %q: %w", words[2], err)
	}

	dataType := parseDataType(words[3])

	t := AttributeTemplate{Type: uint32(typeCode), Name: words[1], DataType: dataType}
	if vendor != nil {
		t.VendorID = vendor.ID
	}

	if len(words) > 4 {
		for _, opt := range strings.Split(words[4], ",") {
			switch {
			case opt == "has_tag":
				t.Tagged = true
			case opt == "encrypt=1":
				t.Codec = CodecUserPassword
			case opt == "encrypt=2":
				t.Codec = CodecTunnelPassword
			case opt == "encrypt=3":
				t.Codec = CodecAscendSendSecret
			case opt == "":
				// trailing comma, ignore
			default:
				// Unknown flag: ignored rather than failing the whole
				// load, matching spec.md's "unknown types fall back"
				// leniency for forward-compatible dictionary files.
			}
		}
	}

	return d.addAttribute(t)
}

func processValue(d *Dictionary, words []string) error {
	if len(words) < 4 {
		return fmt.Errorf("malformed VALUE")
	}
	t, err := d.TemplateByName(words[1])
	if err != nil {
		return fmt.Errorf("VALUE references undeclared attribute %q", words[1])
	}
	val, err := parseIntLiteral(words[3])
	if err != nil {
		return fmt.Errorf("malformed VALUE integer %q: %w", words[3], err)
	}
	if t.EnumByName == nil {
		t.EnumByName = make(map[string]int64)
		t.EnumByCode = make(map[int64]string)
	}
	t.EnumByName[words[2]] = val
	t.EnumByCode[val] = words[2]
	return nil
}

func parseVendorFormat(v *Vendor, spec string) error {
	parts := strings.Split(spec, ",")
	if len(parts) != 2 {
		return fmt.Errorf("malformed format=%s, expected <typeSize>,<lengthSize>", spec)
	}
	typeSize, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("malformed format type size %q: %w", parts[0], err)
	}
	lengthSize, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("malformed format length size %q: %w", parts[1], err)
	}
	v.TypeSize = typeSize
	v.LengthSize = lengthSize
	return nil
}

func parseDataType(s string) AttrDataType {
	switch s {
	case "string":
		return TypeString
	case "octets", "abinary":
		return TypeOctets
	case "integer", "byte", "short", "signed":
		return TypeInteger
	case "integer64":
		return TypeInteger64
	case "date":
		return TypeDate
	case "ipaddr", "ipv4prefix":
		return TypeIPAddr
	case "ipv6addr":
		return TypeIPv6Addr
	case "ipv6prefix":
		return TypeIPv6Prefix
	case "ifid":
		return TypeIfID
	case "tlv", "vsa":
		return TypeVSA
	default:
		return TypeOctets
	}
}

// parseIntLiteral accepts decimal or 0x-prefixed hex integer literals,
// per spec.md section 4.1.
func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}
