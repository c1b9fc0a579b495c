package ingest

import (
	"regexp"
	"strings"
)

// DefaultBlacklist covers role addresses that must never become a
// disposable mailbox.
var DefaultBlacklist = []string{
	"admin", "master", "info", "mail", "webadmin",
	"webmaster", "noreply", "system", "postmaster",
}

// Rejection reasons surfaced to the mail transport.
const (
	ReasonInvalidRecipient = "invalid recipient"
	ReasonDomainRejected   = "domain not accepted"
	ReasonBlacklisted      = "recipient blacklisted"
	ReasonSenderBlocked    = "sender domain blocked"
)

var addressRe = regexp.MustCompile(`([^\s<>@,;"]+)@([^\s<>@,;"]+)`)

type set map[string]struct{}

func newSet(values []string) set {
	s := make(set, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

// Policy decides whether an inbound message may be stored.
type Policy struct {
	domains   set
	blacklist set
	banned    set
}

// NewPolicy builds a policy. A nil blacklist selects DefaultBlacklist; an
// empty domain list accepts every recipient domain.
func NewPolicy(domains, blacklist, bannedSenderDomains []string) Policy {
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	return Policy{
		domains:   newSet(domains),
		blacklist: newSet(blacklist),
		banned:    newSet(bannedSenderDomains),
	}
}

// Blacklisted reports whether a local part is reserved.
func (p Policy) Blacklisted(local string) bool {
	return p.blacklist.has(strings.ToLower(local))
}

// Check applies the acceptance rules in order and returns the first failure.
func (p Policy) Check(from, to string) Result {
	local, domain := ParseAddress(to)
	if local == "" || domain == "" {
		return reject(ReasonInvalidRecipient)
	}
	if len(p.domains) > 0 && !p.domains.has(domain) {
		return reject(ReasonDomainRejected)
	}
	if p.blacklist.has(local) {
		return reject(ReasonBlacklisted)
	}
	if _, senderDomain := ParseAddress(from); senderDomain != "" && p.banned.has(senderDomain) {
		return reject(ReasonSenderBlocked)
	}
	return Result{Accepted: true}
}

// ParseAddress extracts the lower-cased local part and domain of the first
// address in s, which may be bare or in "Name <local@domain>" form.
func ParseAddress(s string) (local, domain string) {
	m := addressRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// ParseList splits a comma-separated configuration value.
func ParseList(csv string) []string {
	var values []string
	for _, v := range strings.Split(csv, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
