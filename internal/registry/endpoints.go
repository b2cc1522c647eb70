package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	EnsoBaseURL           = "https://api.enso.finance/api/v1"
	MorphoGraphQLEndpoint = "https://api.morpho.org/graphql"
	BetSwirlSubgraphBase  = "https://api.studio.thegraph.com/query/1726/betswirl-v2"
)

// Services whose endpoint may be overridden in config.
const (
	ServiceEnso     = "enso"
	ServiceMorpho   = "morpho"
	ServiceBetSwirl = "betswirl"
)

var betSwirlSubgraphSlugs = map[int64]string{
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
	43114: "avalanche",
}

// BetSwirlSubgraphURL returns the per-chain subgraph endpoint.
func BetSwirlSubgraphURL(chainID int64) (string, bool) {
	return BetSwirlSubgraphURLAt(BetSwirlSubgraphBase, chainID)
}

// BetSwirlSubgraphURLAt builds the per-chain endpoint under an alternate base.
func BetSwirlSubgraphURLAt(base string, chainID int64) (string, bool) {
	slug, ok := betSwirlSubgraphSlugs[chainID]
	if !ok {
		return "", false
	}
	return strings.TrimRight(base, "/") + "-" + slug + "/version/latest", true
}

func ServiceBaseURL(service string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case ServiceEnso:
		return EnsoBaseURL, true
	case ServiceMorpho:
		return MorphoGraphQLEndpoint, true
	case ServiceBetSwirl:
		return BetSwirlSubgraphBase, true
	default:
		return "", false
	}
}

// IsAllowedEndpointOverride accepts loopback hosts over http(s) and otherwise only
// https URLs on the service's canonical host and port.
func IsAllowedEndpointOverride(service, endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	if isLoopbackHost(parsed.Hostname()) {
		scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
		return scheme == "http" || scheme == "https"
	}
	if !strings.EqualFold(strings.TrimSpace(parsed.Scheme), "https") {
		return false
	}
	allowedRaw, ok := ServiceBaseURL(service)
	if !ok {
		return false
	}
	allowed, err := url.Parse(allowedRaw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Hostname(), allowed.Hostname()) {
		return false
	}
	return normalizedURLPort(parsed) == normalizedURLPort(allowed)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
