package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/processor"
	"tokenlock/integrations/outbox"
	"tokenlock/native/bonding"
	"tokenlock/native/rewards"
	"tokenlock/native/vesting"
	"tokenlock/observability"
	"tokenlock/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeRejected       = -32010
	codeModulePaused   = -32011
	codeRateLimited    = -32020
)

// Backend is the lock state machine served over RPC.
type Backend interface {
	Apply(ctx context.Context, cmd processor.Command) (*processor.Receipt, error)
	Vesting(owner [20]byte) (*vesting.Account, error)
	Claimable(owner [20]byte, now uint64) (*uint256.Int, error)
	Spendable(owner [20]byte, now uint64) (*uint256.Int, error)
	Backing(owner [20]byte, now uint64) (vesting.Backing, error)
	Stage(id uint64) (*vesting.Stage, error)
	Bonded(account [20]byte, tier uint64) (*uint256.Int, error)
	PendingUnbonds(account [20]byte, tier uint64) ([]bonding.UnbondRequest, error)
	AllBonded(account [20]byte) ([]bonding.TierAmount, error)
	AllPendingUnbonds(account [20]byte) (map[uint64][]bonding.UnbondRequest, error)
	TierTotals(tier uint64) ([]*bonding.TierTotals, error)
	VotingPower(account [20]byte) (*uint256.Int, error)
	PendingReward(account [20]byte) (*uint256.Int, error)
	WithdrawDelegate(owner [20]byte) ([20]byte, error)
	Ledger() (*rewards.Ledger, error)
	Tiers() []bonding.Tier
}

// Outbox is the transfer queue exposed to ledger operators.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]outbox.Transfer, error)
	MarkForwarded(ctx context.Context, ids []uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. It doubles as a Go error so handlers
// can return protocol failures directly.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func invalidParams(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message, status: http.StatusBadRequest}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

// access is the authentication a method requires.
type access int

const (
	accessPublic access = iota
	accessSigned
	accessAdmin
)

type handlerFunc func(ctx context.Context, call *call) (interface{}, error)

type method struct {
	access  access
	handler handlerFunc
}

// call carries one decoded request into a handler.
type call struct {
	principal *Principal
	params    []json.RawMessage
	now       uint64
}

// Server exposes the processor as a JSON-RPC 2.0 endpoint.
type Server struct {
	backend Backend
	outbox  Outbox
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   func() time.Time
	methods map[string]method
}

// Option customises the server.
type Option func(*Server)

// WithAuthenticator enables bearer token authentication for signed methods.
func WithAuthenticator(auth *Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

// WithRateLimiter throttles requests per client.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithOutbox exposes the transfer outbox to admin callers.
func WithOutbox(o Outbox) Option {
	return func(s *Server) { s.outbox = o }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp commands.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer constructs a server around backend.
func NewServer(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("rpc: backend required")
	}
	s := &Server{
		backend: backend,
		logger:  logging.Discard(),
		tracer:  otel.Tracer("tokenlock/rpc"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = s.routes()
	return s, nil
}

// Router mounts the RPC endpoint and health check on a chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rpc := http.Handler(http.HandlerFunc(s.handle))
	if s.limiter != nil {
		rpc = s.limiter.Middleware(rpc)
	}
	r.Method(http.MethodPost, "/", rpc)
	return r
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes a request and dispatches it to the method table.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	observability.RPCMetrics().Observe(req.Method, code, time.Since(start))
	if rpcErr != nil {
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	m, ok := s.methods[req.Method]
	if !ok {
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method, status: http.StatusNotFound}
	}
	ctx, span := s.tracer.Start(r.Context(), "rpc."+req.Method,
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()

	c := &call{params: req.Params, now: uint64(s.clock().Unix())}
	if m.access != accessPublic {
		principal, rpcErr := s.authorize(r, m.access)
		if rpcErr != nil {
			span.SetStatus(codes.Error, rpcErr.Message)
			return nil, rpcErr
		}
		c.principal = principal
	}
	result, err := m.handler(ctx, c)
	if err != nil {
		rpcErr := toRPCError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, rpcErr.Message)
		if rpcErr.status >= http.StatusInternalServerError {
			s.logger.Error("rpc method failed",
				slog.String("method", req.Method),
				slog.Any("error", err))
		}
		return nil, rpcErr
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *Server) authorize(r *http.Request, level access) (*Principal, *RPCError) {
	if s.auth == nil {
		return nil, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured", status: http.StatusUnauthorized}
	}
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Warn("rpc authentication failed",
			slog.String("remote", clientID(r)),
			logging.MaskField("authorization", r.Header.Get("Authorization")),
			slog.Any("error", err))
		return nil, &RPCError{Code: codeUnauthorized, Message: err.Error(), status: http.StatusUnauthorized}
	}
	if level == accessAdmin && !principal.HasScope(ScopeAdmin) {
		return nil, &RPCError{Code: codeForbidden, Message: "admin scope required", status: http.StatusForbidden}
	}
	return principal, nil
}

// toRPCError maps processor errors onto JSON-RPC errors carrying the stable
// reason code as data.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.status == 0 {
			rpcErr.status = http.StatusBadRequest
		}
		return rpcErr
	}
	reason := lockerrors.Code(err)
	data := map[string]string{"reason": reason}
	switch reason {
	case lockerrors.CodeUnauthorized:
		return &RPCError{Code: codeForbidden, Message: err.Error(), Data: data, status: http.StatusForbidden}
	case lockerrors.CodeModulePaused:
		return &RPCError{Code: codeModulePaused, Message: err.Error(), Data: data, status: http.StatusServiceUnavailable}
	case lockerrors.CodeInternal:
		return &RPCError{Code: codeServerError, Message: "internal error", Data: data, status: http.StatusInternalServerError}
	default:
		return &RPCError{Code: codeRejected, Message: err.Error(), Data: data, status: http.StatusBadRequest}
	}
}

// decodeParams unmarshals the single parameter object. Methods whose fields
// are all optional accept an empty params array.
func decodeParams(c *call, dst interface{}) error {
	switch len(c.params) {
	case 0:
		return nil
	case 1:
		dec := json.NewDecoder(bytes.NewReader(c.params[0]))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return invalidParams("invalid parameter object", err)
		}
		return nil
	default:
		return invalidParams("exactly one parameter object expected", nil)
	}
}
