package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wsolMint = "So11111111111111111111111111111111111111112"
	evmAddr  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

func TestExtractAllAnchorClasses(t *testing.T) {
	ex := NewExtractor(DefaultAddressRules())
	a := ex.Extract("$bonk 解锁500万 合约 " + usdcMint + " 以及 " + evmAddr)

	assert.Equal(t, []string{"BONK"}, a.Cashtags)
	assert.Equal(t, []string{"BONK"}, a.Symbols)
	assert.Equal(t, []string{usdcMint}, a.Solana)
	assert.Equal(t, []string{strings.ToLower(evmAddr)}, a.EVM)
	assert.Equal(t, []string{"解锁"}, a.Events)
	assert.True(t, a.HasNumber)
	assert.True(t, a.HasAddress())
}

func TestSolanaAddressLengthBounds(t *testing.T) {
	rules := DefaultAddressRules()

	short := "7xKXtg2CW87d97TXJSDp"
	require.Len(t, short, 20)
	assert.Empty(t, SolanaAddresses("ca "+short, rules), "20 位不应识别为地址")

	long := usdcMint + "abcdef"
	require.Len(t, long, 50)
	assert.Empty(t, SolanaAddresses("ca "+long+" end", rules), "50 位不应截取出 44 位地址")

	assert.Equal(t, []string{wsolMint}, SolanaAddresses(wsolMint, rules))
}

func TestSolanaAddressExactLengthSet(t *testing.T) {
	rules := AddressRules{Lengths: []int{32, 44}}
	assert.Empty(t, SolanaAddresses(wsolMint, rules), "43 位不在集合 {32,44} 中")
	assert.Equal(t, []string{usdcMint}, SolanaAddresses(usdcMint, rules))
}

func TestSolanaAddressDecodeGuard(t *testing.T) {
	// 44 base58 characters that decode to more than 32 bytes.
	bogus := strings.Repeat("z", 44)
	assert.Empty(t, SolanaAddresses(bogus, DefaultAddressRules()))
	assert.Equal(t, []string{bogus}, SolanaAddresses(bogus, AddressRules{SkipDecode: true}))
	assert.Empty(t, SolanaAddresses(bogus, AddressRules{RequireDigit: true, SkipDecode: true}))
}

func TestEVMAddressEmbeddedInLongerHexIsIgnored(t *testing.T) {
	assert.Empty(t, EVMAddresses(evmAddr+"ab"))
	assert.Equal(t, []string{strings.ToLower(evmAddr)}, EVMAddresses("合约:"+evmAddr+"。"))
}

func TestSymbolsRequireThreeLettersWithoutCashtag(t *testing.T) {
	ex := NewExtractor(DefaultAddressRules())
	assert.Empty(t, ex.Extract("ed 说 OK").Symbols)
	assert.Equal(t, []string{"PEPE"}, ex.Extract("PEPE 上所了, BTC 也涨").Symbols)
	assert.Equal(t, []string{"XY"}, ex.Extract("$xy 起飞").Symbols)
	assert.Empty(t, ex.Extract("$ETH $USDT").Symbols)
}

func TestNormalizeSubject(t *testing.T) {
	assert.Equal(t, "BONK", NormalizeSubject(" $bonk "))
	assert.Equal(t, strings.ToLower(evmAddr), NormalizeSubject(evmAddr))
	assert.Equal(t, usdcMint, NormalizeSubject(usdcMint))
	assert.Equal(t, "", NormalizeSubject("$"))
}

func TestEventWordsMatchWholeLatinWords(t *testing.T) {
	ex := NewExtractor(DefaultAddressRules())
	assert.Empty(t, ex.Extract("my playlist and the blacklist").Events)
	assert.Empty(t, ex.Extract("SOL hackathon 报名开始").Events)
	assert.Equal(t, []string{"listing"}, ex.Extract("Binance Listing: WIF").Events)
	assert.Equal(t, []string{"hack", "被黑"}, ex.Extract("bridge hack, 项目被黑").Events)
	assert.Equal(t, []string{"unlock"}, ex.Extract("明天unlock 5%").Events, "中文与英文相邻时仍按词边界匹配")
}
