package upload

import (
	"fmt"
	"os"
	"strings"

	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"
)

// DefaultAcceptedTypes is the set of content types accepted for upload.
var DefaultAcceptedTypes = []string{
	"image/jpeg",
	"image/png",
	"application/pdf",
	"video/mp4",
}

// DefaultMaxSize is the advertised upload limit.
const DefaultMaxSize = "50MB"

var typeLabels = map[string]string{
	"image/jpeg":      "JPEG",
	"image/png":       "PNG",
	"application/pdf": "PDF",
	"video/mp4":       "MP4",
}

// Policy decides which files are accepted. It is the single source of the
// accepted type list for every intake path (browse, drop, CLI, API).
type Policy struct {
	acceptedTypes    []string
	accepted         map[string]struct{}
	maxSizeLabel     string
	maxBytes         int64
	enforceSizeLimit bool
}

// policyFile is the YAML layout read by LoadPolicy.
type policyFile struct {
	AcceptedTypes    []string `yaml:"acceptedTypes"`
	MaxSize          string   `yaml:"maxSize"`
	EnforceSizeLimit bool     `yaml:"enforceSizeLimit"`
}

// NewPolicy builds a policy. maxSize is a human readable size such as "50MB".
// Type matching is exact and case-sensitive.
func NewPolicy(acceptedTypes []string, maxSize string, enforceSizeLimit bool) (*Policy, error) {
	if len(acceptedTypes) == 0 {
		return nil, fmt.Errorf("policy needs at least one accepted type")
	}
	if maxSize == "" {
		maxSize = DefaultMaxSize
	}
	maxBytes, err := bytes.Parse(maxSize)
	if err != nil {
		return nil, fmt.Errorf("parsing max size %q: %w", maxSize, err)
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %q", maxSize)
	}

	p := &Policy{
		acceptedTypes:    make([]string, 0, len(acceptedTypes)),
		accepted:         make(map[string]struct{}, len(acceptedTypes)),
		maxSizeLabel:     maxSize,
		maxBytes:         maxBytes,
		enforceSizeLimit: enforceSizeLimit,
	}
	for _, t := range acceptedTypes {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := p.accepted[t]; dup {
			continue
		}
		p.accepted[t] = struct{}{}
		p.acceptedTypes = append(p.acceptedTypes, t)
	}
	if len(p.acceptedTypes) == 0 {
		return nil, fmt.Errorf("policy needs at least one accepted type")
	}
	return p, nil
}

// DefaultPolicy returns the stock policy: JPEG, PNG, PDF and MP4 with an
// advisory 50MB limit.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultAcceptedTypes, DefaultMaxSize, false)
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy reads a YAML policy file. Missing fields fall back to defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses YAML policy bytes.
func ParsePolicy(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if len(pf.AcceptedTypes) == 0 {
		pf.AcceptedTypes = DefaultAcceptedTypes
	}
	return NewPolicy(pf.AcceptedTypes, pf.MaxSize, pf.EnforceSizeLimit)
}

// Accepts reports whether the declared content type is allowed.
func (p *Policy) Accepts(mimeType string) bool {
	_, ok := p.accepted[mimeType]
	return ok
}

// Check classifies a file. A nil result means the file may be uploaded.
func (p *Policy) Check(mimeType string, size int64) *UploadError {
	if !p.Accepts(mimeType) {
		return RejectedTypeError(mimeType, p.typeList())
	}
	if p.enforceSizeLimit && size > p.maxBytes {
		return FileTooLargeError(size, p.maxBytes)
	}
	return nil
}

// AcceptedTypes returns a copy of the accepted content types in order.
func (p *Policy) AcceptedTypes() []string {
	out := make([]string, len(p.acceptedTypes))
	copy(out, p.acceptedTypes)
	return out
}

// MaxBytes returns the advertised limit in bytes.
func (p *Policy) MaxBytes() int64 { return p.maxBytes }

// EnforcesSizeLimit reports whether oversized files are rejected.
func (p *Policy) EnforcesSizeLimit() bool { return p.enforceSizeLimit }

// OverLimit reports whether size exceeds the advertised limit, enforced or not.
func (p *Policy) OverLimit(size int64) bool { return size > p.maxBytes }

// Hint is the helper line shown under the drop zone,
// e.g. "JPEG, PNG, PDF, and MP4 formats up to 50MB".
func (p *Policy) Hint() string {
	return fmt.Sprintf("%s formats up to %s", p.typeList(), p.maxSizeLabel)
}

func (p *Policy) typeList() string {
	labels := make([]string, 0, len(p.acceptedTypes))
	for _, t := range p.acceptedTypes {
		labels = append(labels, typeLabel(t))
	}
	switch len(labels) {
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	default:
		return strings.Join(labels[:len(labels)-1], ", ") + ", and " + labels[len(labels)-1]
	}
}

func typeLabel(mimeType string) string {
	if l, ok := typeLabels[mimeType]; ok {
		return l
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return strings.ToUpper(sub)
	}
	return mimeType
}
