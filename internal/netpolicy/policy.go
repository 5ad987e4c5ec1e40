// Package netpolicy implements the network access policy the proxy engine
// consults before every dial (§3 NetworkAccessPolicy, §4.11, property P8):
// the dial target's host must resolve outside every blocked CIDR and match
// at least one allowed host, exactly or as a DNS suffix.
package netpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
)

// Policy is the loaded, ready-to-check network access policy.
type Policy struct {
	allowedHosts []string
	blockedCIDRs []*net.IPNet
	resolver     *net.Resolver
}

type policyJSON struct {
	AllowedHosts     []string `json:"allowedHosts"`
	BlockedIPRanges  []string `json:"blockedIpRanges"`
}

// Load reads path (environments/network-access-policy.json).
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network access policy %s: %w", path, err)
	}
	var pj policyJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return nil, fmt.Errorf("parse network access policy %s: %w", path, err)
	}

	cidrs := make([]*net.IPNet, 0, len(pj.BlockedIPRanges))
	for _, c := range pj.BlockedIPRanges {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked CIDR %q: %w", c, err)
		}
		cidrs = append(cidrs, ipnet)
	}

	return &Policy{
		allowedHosts: pj.AllowedHosts,
		blockedCIDRs: cidrs,
		resolver:     net.DefaultResolver,
	}, nil
}

// Allow reports whether dialing host is permitted: host must match an
// allowed entry and every address it resolves to must fall outside every
// blocked CIDR. A host that resolves to zero addresses is denied.
func (p *Policy) Allow(ctx context.Context, host string) error {
	if !p.hostAllowed(host) {
		return fmt.Errorf("host %q is not in the allowed host list", host)
	}

	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve host %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("host %q did not resolve to any address", host)
	}

	for _, addr := range addrs {
		for _, blocked := range p.blockedCIDRs {
			if blocked.Contains(addr.IP) {
				return fmt.Errorf("host %q resolves to %s, which is in a blocked range", host, addr.IP)
			}
		}
	}
	return nil
}

func (p *Policy) hostAllowed(host string) bool {
	for _, allowed := range p.allowedHosts {
		if strings.EqualFold(allowed, host) {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			suffix := allowed[1:] // ".internal.example.com"
			if len(host) > len(suffix) && strings.EqualFold(host[len(host)-len(suffix):], suffix) {
				return true
			}
		}
	}
	return false
}
