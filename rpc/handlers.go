package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	coreerrors "pegcore/core/errors"
	"pegcore/native/ledger"
	"pegcore/native/queue"
)

var (
	errHistoryDisabled = errors.New("rpc: history index disabled")
	errNotFound        = errors.New("rpc: not found")
)

func (s *Server) handleProtocol(w http.ResponseWriter, _ *http.Request) {
	height := s.backend.Height()
	var resp ProtocolResponse
	err := s.backend.View(func(l *ledger.Ledger, _ *queue.Queue) error {
		g, err := l.Global()
		if err != nil {
			return err
		}
		cov, err := l.Coverage()
		if err != nil {
			return err
		}
		price, err := l.TCPrice()
		if err != nil {
			return err
		}
		lck, err := l.LckAC()
		if err != nil {
			return err
		}
		resp = ProtocolResponse{
			Height:       height,
			Vault:        g.Vault.Hex(),
			ACToken:      g.ACToken.Hex(),
			TCToken:      g.TCToken.Hex(),
			FeeToken:     g.FeeToken.Hex(),
			NACcb:        amount(g.NACcb),
			NTCcb:        amount(g.NTCcb),
			Coverage:     amount(cov),
			TCPrice:      amount(price),
			LckAC:        amount(lck),
			ProtThrld:    amount(g.ProtThrld),
			LiqThrld:     amount(g.LiqThrld),
			LiqEnabled:   g.LiqEnabled,
			Liquidated:   g.Liquidated,
			LiquidatedAt: g.LiquidatedAt,
			Paused:       g.Paused,
			PeggedTokens: l.PeggedCount(),
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// pegged renders bucket tp. Derived quantities that depend on a provider
// which currently has no valid data are left empty.
func pegged(l *ledger.Ledger, tp uint32) (PeggedResponse, error) {
	b, err := l.Bucket(tp)
	if err != nil {
		return PeggedResponse{}, err
	}
	resp := PeggedResponse{
		Index:         tp,
		Token:         b.Token.Hex(),
		PriceProvider: b.PriceProvider.Hex(),
		NTP:           amount(b.NTP),
		Ctarg:         amount(b.Ctarg),
		EMA:           amount(b.EMA),
		MintFee:       amount(b.MintFee),
		RedeemFee:     amount(b.RedeemFee),
		FluxAbsolute:  amount(b.Flux.Absolute),
		FluxDiff:      amount(b.Flux.Differential),
		FluxLastBlock: b.Flux.LastOperationBlock,
	}
	if price, valid, err := l.TPPrice(tp); err == nil {
		resp.PriceValid = valid
		if valid {
			resp.Price = amount(price)
		}
	}
	if v, err := l.TPAvailableToMint(tp); err == nil {
		resp.AvailableMint = amount(v)
	}
	if v, err := l.MaxQtyToMint(tp); err == nil {
		resp.MaxQtyToMint = amount(v)
	}
	if v, err := l.MaxQtyToRedeem(tp); err == nil {
		resp.MaxQtyToRedeem = amount(v)
	}
	return resp, nil
}

func (s *Server) handlePeggedList(w http.ResponseWriter, _ *http.Request) {
	var out []PeggedResponse
	err := s.backend.View(func(l *ledger.Ledger, _ *queue.Queue) error {
		count := l.PeggedCount()
		out = make([]PeggedResponse, 0, count)
		for i := 0; i < count; i++ {
			resp, err := pegged(l, uint32(i))
			if err != nil {
				return err
			}
			out = append(out, resp)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePegged(w http.ResponseWriter, r *http.Request) {
	tp, err := parseUint(r, "tp", 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("rpc: invalid pegged token index: %w", err))
		return
	}
	var resp PeggedResponse
	err = s.backend.View(func(l *ledger.Ledger, _ *queue.Queue) error {
		var err error
		resp, err = pegged(l, uint32(tp))
		return err
	})
	switch {
	case errors.Is(err, coreerrors.ErrInvalidPeggedToken):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	var resp QueueResponse
	err := s.backend.View(func(_ *ledger.Ledger, q *queue.Queue) error {
		params, err := q.Params()
		if err != nil {
			return err
		}
		resp = queueResponse(params, q.FirstPendingID(), q.PendingCount())
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUint(r, "id", 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("rpc: invalid operation id: %w", err))
		return
	}
	var resp OperationResponse
	err = s.backend.View(func(_ *ledger.Ledger, q *queue.Queue) error {
		op, ok := q.Operation(id)
		if !ok {
			return errNotFound
		}
		resp = operationResponse(op)
		return nil
	})
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: operation %d", errNotFound, id))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleHistoryOperation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled)
		return
	}
	id, err := parseUint(r, "id", 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("rpc: invalid operation id: %w", err))
		return
	}
	rec, err := s.history.Operation(id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: operation %d", errNotFound, id))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleHistoryBySender(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled)
		return
	}
	sender := r.URL.Query().Get("sender")
	if !common.IsHexAddress(sender) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("rpc: invalid sender %q", sender))
		return
	}
	records, err := s.history.BySender(common.HexToAddress(sender).Hex(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistoryBatches(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled)
		return
	}
	records, err := s.history.Batches(parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
