package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"pegcore/config"
	"pegcore/core/types"
	nativecommon "pegcore/native/common"
)

type peggedReport struct {
	Token               string            `json:"token"`
	PriceProvider       string            `json:"priceProvider"`
	Price               string            `json:"price"`
	Ctarg               string            `json:"ctarg"`
	SmoothingFactor     string            `json:"smoothingFactor"`
	MintFee             string            `json:"mintFee"`
	RedeemFee           string            `json:"redeemFee"`
	FluxMaxAbsolute     string            `json:"fluxMaxAbsolute"`
	FluxMaxDifferential string            `json:"fluxMaxDifferential"`
	Interest            map[string]string `json:"interest"`
}

type auditReport struct {
	Protocol struct {
		QueueAddress       string `json:"queueAddress"`
		Vault              string `json:"vault"`
		ACToken            string `json:"acToken"`
		TCToken            string `json:"tcToken"`
		FeeToken           string `json:"feeToken,omitempty"`
		ProtThrld          string `json:"protThrld"`
		LiqThrld           string `json:"liqThrld"`
		LiqEnabled         bool   `json:"liqEnabled"`
		FluxDecayBlockSpan uint64 `json:"fluxDecayBlockSpan"`
		EMABlockSpan       uint64 `json:"emaBlockSpan"`
		SettlementBlocks   uint64 `json:"settlementBlockSpan"`
		SuccessFee         string `json:"successFee"`
		AppreciationFactor string `json:"appreciationFactor"`
	} `json:"protocol"`
	Fees struct {
		Schedule     map[string]string `json:"schedule"`
		FeeTokenPct  string            `json:"feeTokenPct"`
		FeeCollector string            `json:"feeCollector"`
	} `json:"fees"`
	Queue struct {
		MaxOperPerBatch         uint64            `json:"maxOperPerBatch"`
		MinOperWaitingBlk       uint64            `json:"minOperWaitingBlk"`
		AllowDifferentRecipient bool              `json:"allowDifferentRecipient"`
		ExecFees                map[string]string `json:"execFees"`
	} `json:"queue"`
	Pegged    []peggedReport `json:"peggedTokens"`
	Changers  []string       `json:"changers"`
	Executors []string       `json:"executors"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := writeReport(os.Stdout, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build report: %v\n", err)
		os.Exit(1)
	}
}

func writeReport(w io.Writer, cfg *config.Config) error {
	report, err := buildReport(cfg)
	if err != nil {
		return err
	}
	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func buildReport(cfg *config.Config) (*auditReport, error) {
	params, err := cfg.Parameters()
	if err != nil {
		return nil, err
	}
	f := nativecommon.FormatPrec
	report := &auditReport{}

	g, s := params.Global, params.Settlement
	report.Protocol.QueueAddress = params.Queue.Address.Hex()
	report.Protocol.Vault = g.Vault.Hex()
	report.Protocol.ACToken = g.ACToken.Hex()
	report.Protocol.TCToken = g.TCToken.Hex()
	if g.FeeToken != (common.Address{}) {
		report.Protocol.FeeToken = g.FeeToken.Hex()
	}
	report.Protocol.ProtThrld = f(g.ProtThrld)
	report.Protocol.LiqThrld = f(g.LiqThrld)
	report.Protocol.LiqEnabled = g.LiqEnabled
	report.Protocol.FluxDecayBlockSpan = params.FluxDecayBlockSpan
	report.Protocol.EMABlockSpan = s.EMABlockSpan
	report.Protocol.SettlementBlocks = s.Bes
	report.Protocol.SuccessFee = f(s.SuccessFee)
	report.Protocol.AppreciationFactor = f(s.AppreciationFactor)

	fees := params.Fees
	report.Fees.Schedule = map[string]string{
		"tcMint":        f(fees.TCMintFee),
		"tcRedeem":      f(fees.TCRedeemFee),
		"swapTPforTP":   f(fees.SwapTPforTPFee),
		"swapTPforTC":   f(fees.SwapTPforTCFee),
		"swapTCforTP":   f(fees.SwapTCforTPFee),
		"mintTCandTP":   f(fees.MintTCandTPFee),
		"redeemTCandTP": f(fees.RedeemTCandTPFee),
	}
	report.Fees.FeeTokenPct = f(fees.FeeTokenPct)
	report.Fees.FeeCollector = fees.FeeCollector.Hex()

	q := params.Queue
	report.Queue.MaxOperPerBatch = q.MaxOperPerBatch
	report.Queue.MinOperWaitingBlk = q.MinOperWaitingBlk
	report.Queue.AllowDifferentRecipient = q.AllowDifferentRecipient
	report.Queue.ExecFees = make(map[string]string, len(types.OperTypes))
	for _, kind := range types.OperTypes {
		report.Queue.ExecFees[kind.String()] = f(q.ExecFee(int(kind)))
	}

	for _, tp := range params.Pegged {
		report.Pegged = append(report.Pegged, peggedReport{
			Token:               tp.Token.Hex(),
			PriceProvider:       tp.PriceProvider.Hex(),
			Price:               f(tp.Price),
			Ctarg:               f(tp.Ctarg),
			SmoothingFactor:     f(tp.SmoothingFactor),
			MintFee:             f(tp.MintFee),
			RedeemFee:           f(tp.RedeemFee),
			FluxMaxAbsolute:     f(tp.FluxMaxAbsolute),
			FluxMaxDifferential: f(tp.FluxMaxDifferential),
			Interest: map[string]string{
				"tils":    f(tp.Interest.Tils),
				"tilsMin": f(tp.Interest.TilsMin),
				"tilsMax": f(tp.Interest.TilsMax),
				"facMin":  f(tp.Interest.FacMin),
				"facMax":  f(tp.Interest.FacMax),
				"eq":      f(tp.Interest.Eq),
			},
		})
	}
	for _, a := range params.Changers {
		report.Changers = append(report.Changers, a.Hex())
	}
	for _, a := range params.Executors {
		report.Executors = append(report.Executors, a.Hex())
	}
	return report, nil
}
