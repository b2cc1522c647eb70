package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

var (
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
)

// NativeTokenAddress is the placeholder address routers use for the chain gas token.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Chain maps a human chain name to its numeric id. Entries never change at runtime.
type Chain struct {
	Name         string
	Slug         string
	CAIP2        string
	EVMChainID   int64
	NativeSymbol string
}

type Asset struct {
	ChainID  int64
	Address  string
	Symbol   string
	Decimals int
	Native   bool
	// ResetAllowance marks tokens that reject changing a nonzero allowance to another nonzero value.
	ResetAllowance bool
}

type Token struct {
	Symbol         string
	Address        string
	Decimals       int
	ResetAllowance bool
}

var chains = []Chain{
	{Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSymbol: "ETH"},
	{Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, NativeSymbol: "ETH"},
	{Name: "BSC", Slug: "bsc", CAIP2: "eip155:56", EVMChainID: 56, NativeSymbol: "BNB"},
	{Name: "Gnosis", Slug: "gnosis", CAIP2: "eip155:100", EVMChainID: 100, NativeSymbol: "XDAI"},
	{Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, NativeSymbol: "POL"},
	{Name: "Sonic", Slug: "sonic", CAIP2: "eip155:146", EVMChainID: 146, NativeSymbol: "S"},
	{Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, NativeSymbol: "ETH"},
	{Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, NativeSymbol: "ETH"},
	{Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114, NativeSymbol: "AVAX"},
}

var chainAliases = map[string]string{
	"mainnet": "ethereum",
	"eth":     "ethereum",
	"avax":    "avalanche",
	"arb":     "arbitrum",
	"op":      "optimism",
	"matic":   "polygon",
	"bnb":     "bsc",
	"xdai":    "gnosis",
}

var chainBySlug = func() map[string]Chain {
	out := make(map[string]Chain, len(chains)+len(chainAliases))
	for _, c := range chains {
		out[c.Slug] = c
	}
	for alias, slug := range chainAliases {
		out[alias] = out[slug]
	}
	return out
}()

var chainByID = func() map[int64]Chain {
	out := make(map[int64]Chain, len(chains))
	for _, c := range chains {
		out[c.EVMChainID] = c
	}
	return out
}()

// Small bootstrap registry for deterministic symbol lookup.
var tokenRegistry = map[int64][]Token{
	1: {
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6, ResetAllowance: true},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		{Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		{Symbol: "KNC", Address: "0xdd974D5C2e2928deA5F71b9825b8b646686BD200", Decimals: 18, ResetAllowance: true},
	},
	10: {
		{Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	137: {
		{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
		{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		{Symbol: "DAI", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
		{Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		{Symbol: "WPOL", Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Decimals: 18},
	},
	146: {
		{Symbol: "WS", Address: "0x039e2fB66102314Ce7b64Ce5Ce3E5183bc94aD38", Decimals: 18},
		{Symbol: "STS", Address: "0xE5DA20F15420aD15DE0fa650600aFc998bbE3955", Decimals: 18},
		{Symbol: "USDC.E", Address: "0x29219dd400f2Bf60E5a23d13Be72B486D4038894", Decimals: 6},
		{Symbol: "SWPX", Address: "0xA04BC7140c26fc9BB1F36B1A604C7A5a88fb0E70", Decimals: 18},
		{Symbol: "WETH", Address: "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b", Decimals: 18},
	},
	8453: {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		{Symbol: "CBBTC", Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", Decimals: 8},
	},
	42161: {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
	},
	43114: {
		{Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
		{Symbol: "USDT", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
		{Symbol: "WAVAX", Address: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7", Decimals: 18},
		{Symbol: "BTC.B", Address: "0x152b9d0FdC40C096757F570A51E494bd4b943E50", Decimals: 8},
		{Symbol: "WETH.E", Address: "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB", Decimals: 18},
		{Symbol: "QI", Address: "0x8729438EB15e2C8B576fCc6AeCdA6A148776C0F5", Decimals: 18},
	},
}

// ParseChainName resolves a chain name, alias, numeric id, or CAIP-2 id.
func ParseChainName(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "Chain name is required")
	}
	norm := strings.ToLower(raw)
	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}
	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if n, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[n]; ok {
			return chain, nil
		}
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Unsupported chain name: %s", input))
}

func ChainByID(chainID int64) (Chain, bool) {
	chain, ok := chainByID[chainID]
	return chain, ok
}

// ChainNames returns the slugs of the given chain ids in input order, skipping unknown ids.
func ChainNames(chainIDs []int64) []string {
	out := make([]string, 0, len(chainIDs))
	for _, cid := range chainIDs {
		if chain, ok := chainByID[cid]; ok {
			out = append(out, chain.Slug)
		}
	}
	return out
}

func KnownChains() []Chain {
	out := make([]Chain, len(chains))
	copy(out, chains)
	return out
}

// ParseAsset resolves a token symbol or address on chain. The chain native symbol
// resolves to a native asset with 18 decimals.
func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "Token is required")
	}
	if strings.EqualFold(raw, chain.NativeSymbol) || strings.EqualFold(raw, NativeTokenAddress) {
		return Asset{ChainID: chain.EVMChainID, Address: NativeTokenAddress, Symbol: chain.NativeSymbol, Decimals: 18, Native: true}, nil
	}
	if evmAddressPattern.MatchString(raw) {
		token, ok := findTokenByAddress(chain.EVMChainID, raw)
		if !ok {
			return Asset{ChainID: chain.EVMChainID, Address: raw, Decimals: -1}, nil
		}
		return assetFromToken(chain.EVMChainID, token), nil
	}

	matches := findTokensBySymbol(chain.EVMChainID, raw)
	if len(matches) == 0 {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Token %s not found on %s", input, chain.Slug))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Token %s is ambiguous on %s, use an address (%s)", input, chain.Slug, strings.Join(addresses, ", ")))
	}
	return assetFromToken(chain.EVMChainID, matches[0]), nil
}

// HasDecimals reports whether the asset decimals are known without an on-chain read.
func (a Asset) HasDecimals() bool {
	return a.Decimals >= 0
}

func assetFromToken(chainID int64, t Token) Asset {
	return Asset{
		ChainID:        chainID,
		Address:        t.Address,
		Symbol:         strings.ToUpper(t.Symbol),
		Decimals:       t.Decimals,
		ResetAllowance: t.ResetAllowance,
	}
}

func findTokenByAddress(chainID int64, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Address, strings.TrimSpace(address)) {
			return t, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID int64, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, t)
		}
	}
	return matches
}

func KnownToken(chainID int64, symbol string) (Token, bool) {
	matches := findTokensBySymbol(chainID, symbol)
	if len(matches) != 1 {
		return Token{}, false
	}
	return matches[0], true
}

func LookupByAddress(chainID int64, address string) (Token, bool) {
	return findTokenByAddress(chainID, address)
}

// Tokens lists the registry tokens for chainID in declaration order.
func Tokens(chainID int64) []Token {
	out := make([]Token, len(tokenRegistry[chainID]))
	copy(out, tokenRegistry[chainID])
	return out
}
