package solana

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrorClass groups ledger and network failures by how a caller should react.
type ErrorClass int

const (
	// ClassUnknown is anything we could not recognize.
	ClassUnknown ErrorClass = iota
	// ClassTransient failures may succeed if the same signed bytes are resent.
	ClassTransient
	// ClassExpired means the blockhash is no longer valid; the transaction
	// must be rebuilt and re-signed.
	ClassExpired
	// ClassRejected means the ledger refused the transaction for a logic reason.
	ClassRejected
	// ClassDuplicate means the ledger has already seen this exact transaction.
	ClassDuplicate
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassExpired:
		return "expired"
	case ClassRejected:
		return "rejected"
	case ClassDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// JSON-RPC error codes returned by Solana nodes.
const (
	codeSendTxPreflightFailure   = -32002
	codeSignatureVerification    = -32003
	codeBlockNotAvailable        = -32004
	codeNodeUnhealthy            = -32005
	codeTransactionPrecompile    = -32006
	codeSlotSkipped              = -32007
	codeMinContextSlotNotReached = -32016
)

var (
	duplicatePatterns = []string{
		"already been processed",
		"alreadyprocessed",
	}
	expiredPatterns = []string{
		"block height exceeded",
		"blockheightexceeded",
		"transaction expired",
		"has expired",
	}
	transientPatterns = []string{
		"blockhash not found",
		"blockhashnotfound",
		"timeout",
		"timed out",
		"too many requests",
		"connection reset",
		"connection refused",
		"unexpected eof",
		"node is behind",
		"node is unhealthy",
		"rate limit",
	}
	rejectedPatterns = []string{
		"simulation failed",
		"custom program error",
		"instruction error",
		"instructionerror",
		"insufficient funds",
		"insufficient lamports",
		"invalid account data",
		"account not found",
		"signature verification",
		"invalid transaction",
	}

	// Gateway status codes only count next to HTTP context; a bare "503" may
	// be part of a program error code or an address.
	statusPattern = regexp.MustCompile(`\b(?:status(?: code)?|http)[: ]+(429|502|503|504)\b|\b(429|502|503|504) (?:too many requests|bad gateway|service unavailable|gateway timeout)\b`)
	// A dropped connection surfaces as a trailing ": EOF".
	eofPattern = regexp.MustCompile(`(?:^|[\s:])eof$`)
)

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// httpStatus returns the HTTP status carried by err, or 0.
func httpStatus(err error) int {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	if m := statusPattern.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		code := m[1]
		if code == "" {
			code = m[2]
		}
		switch code {
		case "429":
			return http.StatusTooManyRequests
		case "502":
			return http.StatusBadGateway
		case "503":
			return http.StatusServiceUnavailable
		case "504":
			return http.StatusGatewayTimeout
		}
	}
	return 0
}

// rateLimited reports whether the node turned the request away for rate.
func rateLimited(err error) bool {
	if err == nil {
		return false
	}
	return httpStatus(err) == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(err.Error()), "too many requests")
}

// ClassifyError maps an error from the ledger client into an ErrorClass.
// Message patterns take precedence over JSON-RPC codes because nodes report
// blockhash problems under the generic preflight failure code. HTTP status
// codes are read from the transport error, never from free text alone.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, duplicatePatterns):
		return ClassDuplicate
	case containsAny(msg, expiredPatterns):
		return ClassExpired
	case retryableStatus(httpStatus(err)):
		return ClassTransient
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), eofPattern.MatchString(msg):
		return ClassTransient
	case containsAny(msg, transientPatterns):
		return ClassTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeNodeUnhealthy, codeBlockNotAvailable, codeSlotSkipped, codeMinContextSlotNotReached:
			return ClassTransient
		case codeSendTxPreflightFailure, codeSignatureVerification, codeTransactionPrecompile:
			return ClassRejected
		}
	}

	if containsAny(msg, rejectedPatterns) {
		return ClassRejected
	}
	return ClassUnknown
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
