// Package upload decides whether an untrusted file may be accepted. Decide is
// a pure function of the file's bytes and declared metadata.
package upload

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bimmatch/guard/internal/models"
)

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimeWebP = "image/webp"
	mimePDF  = "application/pdf"

	MiB = 1 << 20
)

// Rule is the size ceiling and MIME allow-list for one category
type Rule struct {
	MaxBytes     int64
	AllowedTypes []string
}

// extensions lists the filename extensions accepted for each MIME type
var extensions = map[string][]string{
	mimeJPEG: {".jpg", ".jpeg"},
	mimePNG:  {".png"},
	mimeWebP: {".webp"},
	mimePDF:  {".pdf"},
}

// documentMarkers are script and auto-action markers that have no business
// in a CV or portfolio PDF. PDF names are case-sensitive; exact markers must
// end at a token boundary so /JS does not match /JSON.
var documentMarkers = []struct {
	name  []byte
	exact bool
}{
	{[]byte("/JavaScript"), false},
	{[]byte("/JS"), true},
	{[]byte("/OpenAction"), false},
	{[]byte("/AA"), true},
	{[]byte("/Launch"), false},
	{[]byte("/EmbeddedFile"), false},
}

var scriptTag = []byte("<script")

// executableSignatures are magic numbers of code formats that should never be
// found inside an image
var executableSignatures = []struct {
	name  string
	magic []byte
}{
	{"ELF", []byte("\x7fELF")},
	{"shell script", []byte("#!/")},
	{"PHP", []byte("<?php")},
	{"Mach-O", []byte{0xfe, 0xed, 0xfa, 0xce}},
	{"Mach-O", []byte{0xfe, 0xed, 0xfa, 0xcf}},
	{"Mach-O", []byte{0xce, 0xfa, 0xed, 0xfe}},
	{"Mach-O", []byte{0xcf, 0xfa, 0xed, 0xfe}},
	{"Mach-O universal", []byte{0xca, 0xfe, 0xba, 0xbe}},
}

// "MZ" alone is too short to scan for, so PE files are matched on their DOS stub
var dosStub = []byte("This program cannot be run in DOS mode")

// Policy holds the per-category rules
type Policy struct {
	rules map[models.FileCategory]Rule
}

// DefaultRules returns the built-in category rules
func DefaultRules() map[models.FileCategory]Rule {
	return map[models.FileCategory]Rule{
		models.CategoryImage: {
			MaxBytes:     5 * MiB,
			AllowedTypes: []string{mimeJPEG, mimePNG, mimeWebP},
		},
		models.CategoryDocument: {
			MaxBytes:     10 * MiB,
			AllowedTypes: []string{mimePDF},
		},
		models.CategoryPortfolio: {
			MaxBytes:     20 * MiB,
			AllowedTypes: []string{mimePDF, mimeJPEG, mimePNG},
		},
	}
}

// NewPolicy builds a policy from rules; nil means DefaultRules
func NewPolicy(rules map[models.FileCategory]Rule) *Policy {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Policy{rules: rules}
}

// MaxBytes returns the largest ceiling across categories
func (p *Policy) MaxBytes() int64 {
	var max int64
	for _, rule := range p.rules {
		if rule.MaxBytes > max {
			max = rule.MaxBytes
		}
	}
	return max
}

// Decide runs every check in order and stops at the first rejection
func (p *Policy) Decide(file models.UploadFile) models.Verdict {
	rule, ok := p.rules[file.Category]
	if !ok {
		return models.Reject(models.RejectUnknownCategory, fmt.Sprintf("unknown upload category %q", file.Category))
	}

	size := file.Size
	if n := int64(len(file.Data)); n > size {
		size = n
	}
	if size > rule.MaxBytes {
		return models.Reject(models.RejectTooLarge,
			fmt.Sprintf("file is %d bytes, the limit for %s uploads is %d", size, file.Category, rule.MaxBytes))
	}

	declared := normalizeMIME(file.DeclaredType)
	if !contains(rule.AllowedTypes, declared) {
		return models.Reject(models.RejectTypeNotAllowed,
			fmt.Sprintf("%s files are not accepted for %s uploads", file.DeclaredType, file.Category))
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if !contains(extensions[declared], ext) {
		return models.Reject(models.RejectExtensionMismatch,
			fmt.Sprintf("extension %q does not match %s", ext, declared))
	}

	if detected := mimetype.Detect(file.Data); !detected.Is(declared) {
		return models.Reject(models.RejectSignatureMismatch,
			fmt.Sprintf("content looks like %s, not %s", detected.String(), declared))
	}

	if declared == mimePDF {
		if marker, found := findDocumentMarker(file.Data); found {
			return models.Reject(models.RejectDangerousContent, fmt.Sprintf("document contains %s", marker))
		}
		return models.Accept()
	}

	if name, found := findExecutable(file.Data); found {
		return models.Reject(models.RejectEmbeddedExecutable, fmt.Sprintf("image contains an embedded %s payload", name))
	}

	return models.Accept()
}

// normalizeMIME drops parameters and case, "Image/JPEG; q=1" -> "image/jpeg"
func normalizeMIME(declared string) string {
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = declared[:i]
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

func findDocumentMarker(data []byte) (string, bool) {
	if bytes.Contains(bytes.ToLower(data), scriptTag) {
		return string(scriptTag), true
	}
	for _, marker := range documentMarkers {
		if marker.exact && containsName(data, marker.name) || !marker.exact && bytes.Contains(data, marker.name) {
			return string(marker.name), true
		}
	}
	return "", false
}

// containsName reports whether name appears as a whole token
func containsName(data, name []byte) bool {
	for offset := 0; ; {
		i := bytes.Index(data[offset:], name)
		if i < 0 {
			return false
		}
		end := offset + i + len(name)
		if end == len(data) || !isNameChar(data[end]) {
			return true
		}
		offset = end
	}
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func findExecutable(data []byte) (string, bool) {
	for _, sig := range executableSignatures {
		if bytes.Contains(data, sig.magic) {
			return sig.name, true
		}
	}
	if i := bytes.Index(data, dosStub); i >= 0 && bytes.Contains(data[:i], []byte("MZ")) {
		return "PE", true
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
