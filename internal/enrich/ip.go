// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"net"
	"strings"
)

// privateNetworks are ranges no external service can locate or resolve.
var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10", // carrier-grade NAT, common in mobile IPDR exports
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("enrich: bad CIDR " + cidr)
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP reports whether ipStr is in a private, loopback, CGNAT or
// link-local range. Unparseable input is not private.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// IsValidPublicIP reports whether ipStr is a routable address worth an
// external lookup.
func IsValidPublicIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	return !IsPrivateIP(ipStr)
}

// NormalizeIP trims whitespace and strips a port or IPv6 brackets:
// "[::1]:8096" becomes "::1", "8.8.8.8:53" becomes "8.8.8.8".
func NormalizeIP(raw string) string {
	addr := strings.TrimSpace(raw)
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx != -1 {
			return addr[1:idx]
		}
		return strings.Trim(addr, "[]")
	}
	// Only a single colon means host:port; bare IPv6 has several.
	if strings.Count(addr, ":") == 1 {
		return addr[:strings.LastIndex(addr, ":")]
	}
	return addr
}
