// Package cookiestore provides an http.CookieJar that survives restarts.
package cookiestore

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/on-cure/oncare/internal/errors"
)

type record struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

func (r record) key() string {
	return r.URL + "|" + r.Domain + "|" + r.Path + "|" + r.Name
}

func (r record) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Path:     r.Path,
		Domain:   r.Domain,
		Expires:  r.Expires,
		Secure:   r.Secure,
		HttpOnly: r.HTTPOnly,
	}
}

// Jar is a cookie jar backed by a JSON file. Cookies are kept in memory
// through net/http/cookiejar and written out on Save.
type Jar struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	records map[string]record
}

// New returns an empty jar persisted at path. An empty path keeps cookies in
// memory only.
func New(path string) (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{
		path:    path,
		now:     time.Now,
		jar:     inner,
		records: make(map[string]record),
	}, nil
}

// Open creates a jar at path and loads any cookies already stored there.
func Open(path string) (*Jar, error) {
	j, err := New(path)
	if err != nil {
		return nil, err
	}
	if err := j.Load(); err != nil {
		return nil, err
	}
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := originOf(u)
	now := j.now()
	for _, c := range cookies {
		r := record{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			r.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		expired := c.MaxAge < 0 || (!r.Expires.IsZero() && !r.Expires.After(now))
		if expired {
			delete(j.records, r.key())
			continue
		}
		j.records[r.key()] = r
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Has reports whether a cookie named name would be sent to u.
func (j *Jar) Has(u *url.URL, name string) bool {
	for _, c := range j.Cookies(u) {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Load replaces the in-memory cookies with the contents of the backing file.
// A missing file leaves the jar empty.
func (j *Jar) Load() error {
	if j.path == "" {
		return nil
	}

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.FileRead(j.path, err)
	}

	var stored []record
	if err := json.Unmarshal(data, &stored); err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "cookie store is corrupt: "+j.path, err).
			WithSuggestion("Delete the file and log in again")
	}

	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar = inner
	j.records = make(map[string]record, len(stored))
	now := j.now()
	for _, r := range stored {
		if !r.Expires.IsZero() && !r.Expires.After(now) {
			continue
		}
		u, err := url.Parse(r.URL)
		if err != nil {
			continue
		}
		j.jar.SetCookies(u, []*http.Cookie{r.cookie()})
		j.records[r.key()] = r
	}
	return nil
}

// Save writes the live cookies to the backing file with owner-only
// permissions.
func (j *Jar) Save() error {
	if j.path == "" {
		return nil
	}

	j.mu.Lock()
	stored := make([]record, 0, len(j.records))
	now := j.now()
	for _, r := range j.records {
		if !r.Expires.IsZero() && !r.Expires.After(now) {
			continue
		}
		stored = append(stored, r)
	}
	j.mu.Unlock()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return errors.FileWrite(filepath.Dir(j.path), err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return errors.FileWrite(j.path, err)
	}
	return nil
}

// Clear drops every cookie and removes the backing file.
func (j *Jar) Clear() error {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.jar = inner
	j.records = make(map[string]record)
	j.mu.Unlock()

	if j.path == "" {
		return nil
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return errors.FileWrite(j.path, err)
	}
	return nil
}

// Len returns the number of live cookies tracked for persistence.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

func originOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}
