// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package mapping

import (
	"regexp"
	"strings"
)

// headerAliases are the column spellings seen in operator IPDR exports.
// Compared after slugging, so "Source IP" and "source-ip" both match.
var headerAliases = map[CanonicalField][]string{
	FieldSourceIP:        {"source_ip", "src_ip", "sourceip", "a_party_ip", "private_ip", "public_ip", "client_ip"},
	FieldDestinationIP:   {"destination_ip", "dest_ip", "dst_ip", "destinationip", "b_party_ip", "server_ip"},
	FieldStartTime:       {"start_time", "session_start_time", "start", "starttime", "session_start", "start_datetime"},
	FieldEndTime:         {"end_time", "session_end_time", "end", "endtime", "session_end", "end_datetime"},
	FieldBytesSent:       {"bytes_sent", "uplink_bytes", "bytes_up", "bytes_out", "ul_bytes", "bytes_transferred"},
	FieldBytesReceived:   {"bytes_received", "downlink_bytes", "bytes_down", "bytes_in", "dl_bytes"},
	FieldUserID:          {"user_id", "user", "user_number", "subscriber_id", "username"},
	FieldSourcePort:      {"source_port", "src_port", "sport"},
	FieldDestinationPort: {"destination_port", "dest_port", "dst_port", "dport"},
	FieldProtocol:        {"protocol", "proto", "ip_protocol"},
	FieldMSISDN:          {"msisdn", "a_party", "mobile_number", "phone_number"},
	FieldIMEI:            {"imei"},
	FieldIMSI:            {"imsi"},
	FieldCellID:          {"cell_id", "cellid", "cgi", "first_cell_id"},
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_"), "_")
}

// AutoDetect builds a mapping from common header spellings. Each raw column
// is claimed by at most one field and earlier aliases win, so an export with
// both bytes_sent and bytes_transferred maps bytes_sent to the former.
func AutoDetect(header []string) ColumnMapping {
	bySlug := make(map[string]string, len(header))
	for _, h := range header {
		s := slug(h)
		if _, dup := bySlug[s]; !dup && s != "" {
			bySlug[s] = strings.TrimSpace(h)
		}
	}

	out := make(ColumnMapping)
	claimed := make(map[string]bool)
	for _, f := range Fields {
		for _, alias := range headerAliases[f] {
			raw, ok := bySlug[alias]
			if !ok || claimed[raw] {
				continue
			}
			out[f] = raw
			claimed[raw] = true
			break
		}
	}
	return out
}
