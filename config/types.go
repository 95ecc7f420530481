package config

// Protocol holds the collateral pool accounts and system-wide thresholds.
// Ratios and fees are decimal strings such as "1.5" or "0.005".
type Protocol struct {
	QueueAddress          string `toml:"QueueAddress"`
	Vault                 string `toml:"Vault"`
	ACToken               string `toml:"ACToken"`
	TCToken               string `toml:"TCToken"`
	FeeToken              string `toml:"FeeToken"`
	FeeCollector          string `toml:"FeeCollector"`
	TCInterestCollector   string `toml:"TCInterestCollector"`
	ProtThrld             string `toml:"ProtThrld"`
	LiqThrld              string `toml:"LiqThrld"`
	LiqEnabled            bool   `toml:"LiqEnabled"`
	FluxDecayBlockSpan    uint64 `toml:"FluxDecayBlockSpan"`
	EMABlockSpan          uint64 `toml:"EMABlockSpan"`
	SettlementBlockSpan   uint64 `toml:"SettlementBlockSpan"`
	SuccessFee            string `toml:"SuccessFee"`
	AppreciationFactor    string `toml:"AppreciationFactor"`
	FeeTokenPct           string `toml:"FeeTokenPct"`
	FeeTokenPriceProvider string `toml:"FeeTokenPriceProvider"`
	FeeTokenPrice         string `toml:"FeeTokenPrice"`
}

// Fees configures the fee schedule of operations not tied to a single
// pegged token.
type Fees struct {
	TCMintFee        string `toml:"TCMintFee"`
	TCRedeemFee      string `toml:"TCRedeemFee"`
	SwapTPforTPFee   string `toml:"SwapTPforTPFee"`
	SwapTPforTCFee   string `toml:"SwapTPforTCFee"`
	SwapTCforTPFee   string `toml:"SwapTCforTPFee"`
	MintTCandTPFee   string `toml:"MintTCandTPFee"`
	RedeemTCandTPFee string `toml:"RedeemTCandTPFee"`
}

// Queue configures batching and submission policy.
type Queue struct {
	MaxOperPerBatch         uint64            `toml:"MaxOperPerBatch"`
	MinOperWaitingBlk       uint64            `toml:"MinOperWaitingBlk"`
	AllowDifferentRecipient bool              `toml:"AllowDifferentRecipient"`
	ExecFee                 string            `toml:"ExecFee"`
	ExecFees                map[string]string `toml:"ExecFees"`
}

// Interest configures the redemption interest curve of a pegged token.
type Interest struct {
	Tils    string `toml:"Tils"`
	TilsMin string `toml:"TilsMin"`
	TilsMax string `toml:"TilsMax"`
	Eq      string `toml:"Eq"`
	FacMin  string `toml:"FacMin"`
	FacMax  string `toml:"FacMax"`
	Bmin    uint64 `toml:"Bmin"`
}

// PeggedToken registers a pegged token at startup. Price seeds the in-process
// feed published at PriceProvider.
type PeggedToken struct {
	Token               string   `toml:"Token"`
	PriceProvider       string   `toml:"PriceProvider"`
	Price               string   `toml:"Price"`
	Ctarg               string   `toml:"Ctarg"`
	SmoothingFactor     string   `toml:"SmoothingFactor"`
	MintFee             string   `toml:"MintFee"`
	RedeemFee           string   `toml:"RedeemFee"`
	FluxMaxAbsolute     string   `toml:"FluxMaxAbsolute"`
	FluxMaxDifferential string   `toml:"FluxMaxDifferential"`
	Interest            Interest `toml:"Interest"`
}

// Governance lists the accounts allowed to change parameters and to execute
// batches.
type Governance struct {
	Changers  []string `toml:"Changers"`
	Executors []string `toml:"Executors"`
}

// RPC configures the query surface.
type RPC struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	Burst              int     `toml:"Burst"`
	ReadTimeoutSecs    int     `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs   int     `toml:"WriteTimeoutSecs"`
}

// History configures the operation history index. An empty driver disables
// it.
type History struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Node drives the local block clock of pegd. Keeper, when set, is the
// executor address pegd uses to run a batch every block; it must also be
// listed in Governance.Executors.
type Node struct {
	BlockTimeSecs      int    `toml:"BlockTimeSecs"`
	PersistEveryBlocks uint64 `toml:"PersistEveryBlocks"`
	Keeper             string `toml:"Keeper"`
}
