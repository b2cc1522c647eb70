package registry

import "sort"

// Multicall3 is deployed at the same address on every supported chain.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Aave V3 PoolAddressesProvider contracts and the wrapped native token used for native supplies.
type AaveV3Deployment struct {
	PoolAddressesProvider string
	WrappedNative         string
}

var aaveV3ByChainID = map[int64]AaveV3Deployment{
	1:     {PoolAddressesProvider: "0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e", WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
	10:    {PoolAddressesProvider: "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb", WrappedNative: "0x4200000000000000000000000000000000000006"},
	137:   {PoolAddressesProvider: "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb", WrappedNative: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"},
	8453:  {PoolAddressesProvider: "0xe20fCBdBfFC4Dd138cE8b2E6FBb6CB49777ad64D", WrappedNative: "0x4200000000000000000000000000000000000006"},
	42161: {PoolAddressesProvider: "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb", WrappedNative: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"},
	43114: {PoolAddressesProvider: "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb", WrappedNative: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7"},
}

func AaveV3(chainID int64) (AaveV3Deployment, bool) {
	value, ok := aaveV3ByChainID[chainID]
	return value, ok
}

func AaveV3Chains() []int64 {
	return sortedKeys(aaveV3ByChainID)
}

// Morpho Blue singleton deployments.
var morphoBlueByChainID = map[int64]string{
	1:    "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb",
	8453: "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb",
}

func MorphoBlue(chainID int64) (string, bool) {
	value, ok := morphoBlueByChainID[chainID]
	return value, ok
}

func MorphoChains() []int64 {
	return sortedKeys(morphoBlueByChainID)
}

// Beets staked Sonic (stS) deployment. ValidatorIDs is the delegation set checked
// in order when picking a validator to undelegate from.
type BeetsDeployment struct {
	StakedSonic  string
	SFC          string
	ValidatorIDs []int64
}

var beetsByChainID = map[int64]BeetsDeployment{
	146: {
		StakedSonic:  "0xE5DA20F15420aD15DE0fa650600aFc998bbE3955",
		SFC:          "0xFC00FACE00000000000000000000000000000000",
		ValidatorIDs: []int64{13, 14, 15, 16, 17, 18, 33},
	},
}

func Beets(chainID int64) (BeetsDeployment, bool) {
	value, ok := beetsByChainID[chainID]
	return value, ok
}

func BeetsChains() []int64 {
	return sortedKeys(beetsByChainID)
}

type BenqiMarket struct {
	Name       string
	QiToken    string
	Underlying string
	Decimals   int
	Native     bool
}

type BenqiDeployment struct {
	Comptroller string
	GaugeVoting string
	Markets     []BenqiMarket
}

var benqiByChainID = map[int64]BenqiDeployment{
	43114: {
		Comptroller: "0x486Af39519B4Dc9a7fCcd318217352830E8AD9b4",
		GaugeVoting: "0x7c7E82bb6dB4A4Ed4f8A5a2b8F8E8cD3d5bd1Cc4",
		Markets: []BenqiMarket{
			{Name: "AVAX", QiToken: "0x5C0401e81Bc07Ca70fAD469b451682c0d747Ef1c", Decimals: 18, Native: true},
			{Name: "USDC", QiToken: "0xB715808a78F6041E46d61Cb123C9B4A27056AE9C", Underlying: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
			{Name: "USDT", QiToken: "0xd8fcDa6ec4Bdc547C0827B8804e89aCd817d56EF", Underlying: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
			{Name: "BTC.b", QiToken: "0x89a415b3D20098E6A6C8f7a59001C67BD3129821", Underlying: "0x152b9d0FdC40C096757F570A51E494bd4b943E50", Decimals: 8},
			{Name: "QI", QiToken: "0x35Bd6aedA81a7E5FC7A7832490e71F757b0cD9Ce", Underlying: "0x8729438EB15e2C8B576fCc6AeCdA6A148776C0F5", Decimals: 18},
		},
	},
}

func Benqi(chainID int64) (BenqiDeployment, bool) {
	value, ok := benqiByChainID[chainID]
	return value, ok
}

func BenqiChains() []int64 {
	return sortedKeys(benqiByChainID)
}

type SwapXDeployment struct {
	VotingEscrow string
	Voter        string
	SWPx         string
}

var swapXByChainID = map[int64]SwapXDeployment{
	146: {
		VotingEscrow: "0xEF0EA0e8bA9b0E9e8D3eC2A1b2dC0fA2f7b8bD6a",
		Voter:        "0xC1AE2779903cfB84CB9DEe5c03EcEAc32dc407F2",
		SWPx:         "0xA04BC7140c26fc9BB1F36B1A604C7A5a88fb0E70",
	},
}

func SwapX(chainID int64) (SwapXDeployment, bool) {
	value, ok := swapXByChainID[chainID]
	return value, ok
}

func SwapXChains() []int64 {
	return sortedKeys(swapXByChainID)
}

type BetSwirlDeployment struct {
	CoinToss string
	Dice     string
	Bank     string
}

var betSwirlByChainID = map[int64]BetSwirlDeployment{
	137: {
		CoinToss: "0xC3Dff2489F8241729B824e23eD01F986fcDf8ec3",
		Dice:     "0xAa4D2931a9fE14c3dec8AC3f12923Cbb535C0e5f",
		Bank:     "0x8FB3110015FBCAA469ee45B64dcd2BdF544B9CFA",
	},
	8453: {
		CoinToss: "0xC3Dff2489F8241729B824e23eD01F986fcDf8ec3",
		Dice:     "0xAa4D2931a9fE14c3dec8AC3f12923Cbb535C0e5f",
		Bank:     "0x8FB3110015FBCAA469ee45B64dcd2BdF544B9CFA",
	},
	42161: {
		CoinToss: "0xC3Dff2489F8241729B824e23eD01F986fcDf8ec3",
		Dice:     "0xAa4D2931a9fE14c3dec8AC3f12923Cbb535C0e5f",
		Bank:     "0x8FB3110015FBCAA469ee45B64dcd2BdF544B9CFA",
	},
	43114: {
		CoinToss: "0xC3Dff2489F8241729B824e23eD01F986fcDf8ec3",
		Dice:     "0xAa4D2931a9fE14c3dec8AC3f12923Cbb535C0e5f",
		Bank:     "0x8FB3110015FBCAA469ee45B64dcd2BdF544B9CFA",
	},
}

func BetSwirl(chainID int64) (BetSwirlDeployment, bool) {
	value, ok := betSwirlByChainID[chainID]
	return value, ok
}

func BetSwirlChains() []int64 {
	return sortedKeys(betSwirlByChainID)
}

// Enso RouterV2 shares one address across chains.
const EnsoRouterAddress = "0xF75584eF6673aD213a685a1B58Cc0330B8eA22Cf"

var ensoChains = []int64{1, 146, 8453, 42161, 43114}

func EnsoChains() []int64 {
	out := make([]int64, len(ensoChains))
	copy(out, ensoChains)
	return out
}

func sortedKeys[T any](m map[int64]T) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
