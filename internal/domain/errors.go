package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Call failures are classified into
// exactly one of these before they cross a package boundary.
var (
	ErrUnknownEndpoint  = fmt.Errorf("endpoint not registered")
	ErrEndpointDisabled = fmt.Errorf("endpoint disabled")
	ErrCircuitOpen      = fmt.Errorf("circuit breaker open")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrConnection       = fmt.Errorf("connection failed")
	ErrProtocol         = fmt.Errorf("malformed response")
	ErrCacheUnavailable = fmt.Errorf("cache unavailable")
	ErrAgentExecution   = fmt.Errorf("agent execution failed")
	ErrOrchestration    = fmt.Errorf("orchestration failed")

	// Registration-time errors. These surface when the registry or agent
	// roster is built at startup, never during a call.
	ErrDuplicateEndpoint = fmt.Errorf("endpoint already registered")
	ErrInvalidEndpoint   = fmt.Errorf("endpoint definition invalid")
	ErrUnknownAgentKind  = fmt.Errorf("agent kind not recognized")
	ErrDuplicateAgent    = fmt.Errorf("agent kind already registered")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: authentication failed")
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Infrastructure errors.
	ErrConfigLoad            = fmt.Errorf("failed to load configuration")
	ErrDecryption            = fmt.Errorf("decryption failed")
	ErrEncryption            = fmt.Errorf("encryption operation failed")
	ErrAuditWrite            = fmt.Errorf("audit record write failed")
	ErrInvestigationNotFound = fmt.Errorf("investigation not found")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Client.Call")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "backend", "orchestrate")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem so that
// monitoring can attribute the failure without parsing the message.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryable reports whether err is a transient call failure that may
// succeed on retry. Only timeouts and connection failures qualify; every
// other classification surfaces immediately.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}

// ErrorCode is a machine-parseable error category for monitoring and the
// gateway wire format.
type ErrorCode string

// Every sentinel error maps to exactly one code.
const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeUnknownEndpoint   ErrorCode = "UNKNOWN_ENDPOINT"
	CodeEndpointDisabled  ErrorCode = "ENDPOINT_DISABLED"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeConnection        ErrorCode = "CONNECTION_ERROR"
	CodeProtocol          ErrorCode = "PROTOCOL_ERROR"
	CodeCacheUnavailable  ErrorCode = "CACHE_UNAVAILABLE"
	CodeAgentExecution    ErrorCode = "AGENT_EXECUTION_FAILURE"
	CodeOrchestration     ErrorCode = "ORCHESTRATION_FAILURE"
	CodeDuplicateEndpoint ErrorCode = "DUPLICATE_ENDPOINT"
	CodeInvalidEndpoint   ErrorCode = "INVALID_ENDPOINT"
	CodeUnknownAgentKind  ErrorCode = "UNKNOWN_AGENT_KIND"
	CodeDuplicateAgent    ErrorCode = "DUPLICATE_AGENT"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeEncryption        ErrorCode = "ENCRYPTION"
	CodeAuditWrite        ErrorCode = "AUDIT_WRITE"

	CodeInvestigationNotFound ErrorCode = "INVESTIGATION_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrUnknownEndpoint:       CodeUnknownEndpoint,
	ErrEndpointDisabled:      CodeEndpointDisabled,
	ErrCircuitOpen:           CodeCircuitOpen,
	ErrTimeout:               CodeTimeout,
	ErrConnection:            CodeConnection,
	ErrProtocol:              CodeProtocol,
	ErrCacheUnavailable:      CodeCacheUnavailable,
	ErrAgentExecution:        CodeAgentExecution,
	ErrOrchestration:         CodeOrchestration,
	ErrDuplicateEndpoint:     CodeDuplicateEndpoint,
	ErrInvalidEndpoint:       CodeInvalidEndpoint,
	ErrUnknownAgentKind:      CodeUnknownAgentKind,
	ErrDuplicateAgent:        CodeDuplicateAgent,
	ErrGatewayAuthFailed:     CodeGatewayAuth,
	ErrRPCMethodNotFound:     CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:     CodeRPCInvalidPayload,
	ErrConfigLoad:            CodeConfigLoad,
	ErrDecryption:            CodeDecryption,
	ErrEncryption:            CodeEncryption,
	ErrAuditWrite:            CodeAuditWrite,
	ErrInvestigationNotFound: CodeInvestigationNotFound,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
