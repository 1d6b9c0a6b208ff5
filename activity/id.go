package activity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ID uniquely identifies one provisioning attempt.
//
// Cloud, Template and Name describe where the attempt came from. Nonce makes two attempts
// with the same origin distinct. An ID is created once per attempt and never changes, so
// it is safe to use as a map key and to persist.
type ID struct {
	// Cloud is the name of the cloud the resource is provisioned in.
	Cloud string `json:"cloud"`
	// Template is the name of the template used, if any.
	Template string `json:"template,omitempty"`
	// Name is the name the resource was planned with, if known up front.
	Name string `json:"name,omitempty"`
	// Nonce distinguishes attempts that share Cloud, Template and Name.
	Nonce string `json:"nonce"`
}

// NewID returns an ID with a freshly generated nonce.
func NewID(cloud, template, name string) ID {
	return ID{
		Cloud:    cloud,
		Template: template,
		Name:     name,
		Nonce:    uuid.NewString(),
	}
}

// IsValid reports whether the ID has the fields required to identify an attempt.
func (id ID) IsValid() bool {
	return id.Cloud != "" && id.Nonce != ""
}

// Fingerprint returns a stable numeric reference for the ID.
//
// Fingerprints are used in URLs. They are not guaranteed to be unique, lookups by
// fingerprint return the first match.
func (id ID) Fingerprint() uint64 {
	d := xxhash.New()
	for _, part := range []string{id.Cloud, id.Template, id.Name, id.Nonce} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// String returns the textual form of the ID: cloud/template/name#nonce. Each field is
// percent-escaped, so a "/" or "#" inside a field survives ParseID.
func (id ID) String() string {
	return fmt.Sprintf("%s/%s/%s#%s",
		url.PathEscape(id.Cloud),
		url.PathEscape(id.Template),
		url.PathEscape(id.Name),
		url.PathEscape(id.Nonce))
}

// ParseID parses the textual form produced by ID.String.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	hash := strings.LastIndex(s, "#")
	if hash < 0 {
		return ID{}, fmt.Errorf("invalid activity id %q: missing nonce", s)
	}

	parts := strings.SplitN(s[:hash], "/", 3)
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("invalid activity id %q: expected cloud/template/name", s)
	}

	fields := append(parts, s[hash+1:])
	for i, f := range fields {
		unescaped, err := url.PathUnescape(f)
		if err != nil {
			return ID{}, fmt.Errorf("invalid activity id %q: %w", s, err)
		}
		fields[i] = unescaped
	}

	id := ID{
		Cloud:    fields[0],
		Template: fields[1],
		Name:     fields[2],
		Nonce:    fields[3],
	}
	if !id.IsValid() {
		return ID{}, fmt.Errorf("invalid activity id %q: cloud and nonce are required", s)
	}
	return id, nil
}
