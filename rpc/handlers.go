package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stylustx/native/paymaster"
)

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.decodeMetaTx(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HashResponse{Hash: tx.Hash()})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.decodeMetaTx(w, r)
	if !ok {
		return
	}
	var assessment *paymaster.Assessment
	err := s.submitter.View(func() error {
		var err error
		assessment, err = s.engine.Assess(tx)
		return err
	})
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	resp := VerifyResponse{Status: string(assessment.Status), Hash: assessment.Hash}
	if assessment.ExpectedNonce != nil {
		resp.ExpectedNonce = assessment.ExpectedNonce.Dec()
	}
	if assessment.Signer != (common.Address{}) {
		signer := assessment.Signer
		resp.Signer = &signer
	}
	if assessment.Status == paymaster.AssessmentRejected {
		body := errorBody(assessment.Err)
		if assessment.Err == nil {
			body = ErrorBody{Kind: assessment.Kind.String(), Message: assessment.Reason}
		}
		resp.Error = &body
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.decodeMetaTx(w, r)
	if !ok {
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("metatx.user", tx.From.Hex()),
		attribute.String("metatx.nonce", tx.Nonce.Dec()),
	)
	calldata, err := paymaster.PackExecute(tx)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{Message: err.Error()})
		return
	}
	out, err := s.submitter.Submit(s.cfg.Relayer, s.cfg.Relay, nil, calldata)
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	result, err := paymaster.UnpackExecuteOutput(out)
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	// A successful execute consumed exactly tx.Nonce.
	next := new(uint256.Int).AddUint64(tx.Nonce, 1)
	s.logger.Info("meta-transaction relayed",
		slog.String("user", tx.From.Hex()),
		slog.String("nonce", tx.Nonce.Dec()),
		slog.String("request_id", RequestIDFromContext(r.Context())))
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Result:    result,
		User:      tx.From,
		Nonce:     tx.Nonce.Dec(),
		NextNonce: next.Dec(),
	})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, ErrorBody{Message: fmt.Sprintf("invalid address %q", raw)})
		return
	}
	addr := common.HexToAddress(raw)
	var nonce *uint256.Int
	err := s.submitter.View(func() error {
		var err error
		nonce, err = s.engine.Nonce(addr)
		return err
	})
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Address: addr, Nonce: nonce.Dec()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var cfg paymaster.Config
	err := s.submitter.View(func() error {
		var err error
		cfg, err = s.engine.Config()
		return err
	})
	if err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{
		Relay:                  s.cfg.Relay,
		Owner:                  cfg.Owner,
		AllowedTarget:          cfg.AllowedTarget,
		Initialized:            cfg.Initialized,
		Paused:                 cfg.Paused,
		ChainID:                s.cfg.ChainID,
		DefaultDeadlineSeconds: uint64(s.cfg.DefaultDeadline.Seconds()),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var cursor uint64
	if raw := query.Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorBody{Message: "cursor must be an unsigned integer"})
			return
		}
		cursor = parsed
	}
	limit := defaultEventLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, ErrorBody{Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	records := s.events.Since(cursor, limit)
	resp := EventsResponse{Events: make([]EventJSON, 0, len(records)), Next: cursor}
	for _, rec := range records {
		resp.Events = append(resp.Events, EventJSON{Seq: rec.Seq, Type: rec.Event.Type, Attributes: rec.Event.Attributes})
		resp.Next = rec.Seq + 1
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.submitAdmin(w, r, "pause")
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.submitAdmin(w, r, "unpause")
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.submitAdmin(w, r, "setAllowedTarget", req.Address)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.submitAdmin(w, r, "transferOwnership", req.Address)
}

func (s *Server) submitAdmin(w http.ResponseWriter, r *http.Request, method string, args ...interface{}) {
	calldata, err := paymaster.ABI().Pack(method, args...)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{Message: err.Error()})
		return
	}
	if _, err := s.submitter.Submit(s.cfg.Operator, s.cfg.Relay, nil, calldata); err != nil {
		s.writeRelayError(w, r, err)
		return
	}
	subject, _ := r.Context().Value(contextKeySubject).(string)
	s.logger.Info("admin operation applied",
		slog.String("method", method),
		slog.String("subject", subject),
		slog.String("request_id", RequestIDFromContext(r.Context())))
	s.handleConfig(w, r)
}

func (s *Server) decodeMetaTx(w http.ResponseWriter, r *http.Request) (*paymaster.MetaTx, bool) {
	var body MetaTxJSON
	if !decodeJSON(w, r, &body) {
		return nil, false
	}
	tx, err := body.ToMetaTx()
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{Message: err.Error()})
		return nil, false
	}
	return tx, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, ErrorBody{Message: "request body required"})
			return false
		}
		writeError(w, http.StatusBadRequest, ErrorBody{Message: fmt.Sprintf("invalid payload: %v", err)})
		return false
	}
	return true
}

// writeRelayError maps engine errors onto HTTP statuses. Errors outside the
// closed set are reported as internal failures without their detail.
func (s *Server) writeRelayError(w http.ResponseWriter, r *http.Request, err error) {
	var pmErr *paymaster.Error
	if !errors.As(err, &pmErr) {
		s.logger.Error("relay request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "internal error"})
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("paymaster.error", pmErr.Kind.String()))
	writeError(w, statusForKind(pmErr.Kind), errorBody(pmErr))
}

func errorBody(err *paymaster.Error) ErrorBody {
	if err == nil {
		return ErrorBody{Message: "unknown error"}
	}
	return ErrorBody{Kind: err.Kind.String(), Message: err.Error(), RevertData: err.ABIEncode()}
}

func statusForKind(kind paymaster.ErrorKind) int {
	switch kind {
	case paymaster.KindNotOwner:
		return http.StatusForbidden
	case paymaster.KindContractPaused, paymaster.KindNotInitialized:
		return http.StatusServiceUnavailable
	case paymaster.KindInvalidNonce, paymaster.KindAlreadyInitialized:
		return http.StatusConflict
	case paymaster.KindCallFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, errorResponse{Error: body})
}
