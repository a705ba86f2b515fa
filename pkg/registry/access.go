package registry

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrRepositoryNotFound is returned for unknown repository names.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrAccessDenied is returned when a client is not allowed to use a repository.
	ErrAccessDenied = errors.New("access denied")

	// ErrReadOnly is returned for mutating requests on a read-only repository.
	ErrReadOnly = errors.New("repository is read-only")
)

// CheckAccess decides whether clientAddr may use the named repository.
//
// Rules, in order:
//  1. a client matching DeniedClients is refused
//  2. if AllowedClients is non-empty, the client must match it
//  3. mutating requests (write = true) on a read-only repository are refused
//
// clientAddr may be "ip" or "ip:port".
func (r *Registry) CheckAccess(name, clientAddr string, write bool) error {
	entry, err := r.GetRepository(name)
	if err != nil {
		return err
	}

	ip := parseClientIP(clientAddr)
	if ip == nil && (len(entry.denied) > 0 || len(entry.allowed) > 0) {
		return fmt.Errorf("%w: unparseable client address %q", ErrAccessDenied, clientAddr)
	}

	if matchAny(entry.denied, ip) {
		return fmt.Errorf("%w: client %s denied for %q", ErrAccessDenied, ip, name)
	}
	if len(entry.allowed) > 0 && !matchAny(entry.allowed, ip) {
		return fmt.Errorf("%w: client %s not allowed for %q", ErrAccessDenied, ip, name)
	}
	if write && entry.ReadOnly {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	return nil
}

func parseClientIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(strings.TrimSpace(addr))
}

func matchAny(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseClientList accepts plain IPs and CIDR ranges.
func parseClientList(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			e = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
