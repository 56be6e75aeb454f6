// Package guard holds the validation rules shared by every purl tool:
// which URLs may be published or probed, which file names may be written
// into the site directory, and how much of a remote body is read.
package guard

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxProbeBody caps how much of a probed response body is drained (1 MiB).
const MaxProbeBody int64 = 1 << 20

var (
	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

	// ErrNoHost is returned when a URL has no host component.
	ErrNoHost = errors.New("guard: URL has no host")

	// ErrPrivateAddress is returned when a URL targets a private or loopback address.
	ErrPrivateAddress = errors.New("guard: URL targets a private or loopback address")

	// ErrInvalidFileName is returned when a page name does not match the
	// generated-name pattern or would escape the site directory.
	ErrInvalidFileName = errors.New("guard: invalid page file name")

	// ErrPathTraversal is returned when a joined path escapes its base.
	ErrPathTraversal = errors.New("guard: path traversal detected")
)

// generatedName is the shape of every name the Name Generator produces.
var generatedName = regexp.MustCompile(`^[a-z0-9]{5,7}\.html$`)

// ValidateURL checks that rawURL is absolute, uses http or https and has a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return ErrNoHost
	}
	return nil
}

// ValidatePublicURL is ValidateURL plus a check that the host does not
// resolve to a private, link-local or loopback address. DNS failures pass:
// the probe reports them as network errors.
func ValidatePublicURL(rawURL string) error {
	if err := ValidateURL(rawURL); err != nil {
		return err
	}
	u, _ := url.Parse(rawURL)
	host := u.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// ValidateGeneratedName reports whether name has the exact shape of a
// generated page name: 5 to 7 lowercase base-36 characters plus ".html".
func ValidateGeneratedName(name string) error {
	if !generatedName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// ValidateFileName is the lenient rule applied to names already in a
// registry: a bare file name ending in ".html" that cannot leave the site
// directory. Older registries contain names outside the generated pattern.
func ValidateFileName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || !strings.HasSuffix(strings.ToLower(name), ".html") {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// SafePath joins base and name and verifies the result stays under base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, filepath.Clean("/"+name))
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

var privateRanges = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
