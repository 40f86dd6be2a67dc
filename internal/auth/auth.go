// Package auth proves that a request was signed by the wallet it acts for.
// Wallet addresses are ed25519 public keys, so the signer header doubles as
// the verification key.
package auth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"chainproof-ledger/internal/domain"
)

const (
	// HeaderSigner carries the base58 wallet address that signed the request.
	HeaderSigner = "X-Chainproof-Signer"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Chainproof-Timestamp"
	// HeaderSignature carries the base58 ed25519 signature.
	HeaderSignature = "X-Chainproof-Signature"
	// MaxBodyForSignature is the maximum body size we will verify.
	MaxBodyForSignature int64 = 1 << 20

	defaultSkew = 5 * time.Minute
)

var (
	ErrMissingHeader    = errors.New("auth: missing signature header")
	ErrInvalidSigner    = errors.New("auth: invalid signer")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrStaleTimestamp   = errors.New("auth: timestamp outside allowed skew")
	ErrReplayed         = errors.New("auth: signature already used")
	ErrBodyTooLarge     = errors.New("auth: request body too large")
)

// Verifier checks that signature over message was produced by identity.
type Verifier interface {
	VerifyAuthority(identity domain.Address, message, signature []byte) bool
}

// Ed25519Verifier verifies Solana wallet signatures.
type Ed25519Verifier struct{}

// VerifyAuthority implements Verifier.
func (Ed25519Verifier) VerifyAuthority(identity domain.Address, message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(identity[:]), message, signature)
}

// SigningPayload builds the message a client signs for a request.
func SigningPayload(method, path, timestamp string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

// Sign produces the headers for a request signed with key. Used by clients and tests.
func Sign(key ed25519.PrivateKey, method, path string, ts time.Time, body []byte) http.Header {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	sig := ed25519.Sign(key, SigningPayload(method, path, timestamp, body))
	h := http.Header{}
	h.Set(HeaderSigner, base58.Encode(key.Public().(ed25519.PublicKey)))
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderSignature, base58.Encode(sig))
	return h
}

// Authenticator verifies signed requests.
type Authenticator struct {
	verifier Verifier
	skew     time.Duration
	nowFn    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewAuthenticator builds an Authenticator. A non-positive skew selects five minutes.
func NewAuthenticator(verifier Verifier, skew time.Duration, nowFn func() time.Time) *Authenticator {
	if verifier == nil {
		verifier = Ed25519Verifier{}
	}
	if skew <= 0 {
		skew = defaultSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{
		verifier: verifier,
		skew:     skew,
		nowFn:    nowFn,
		seen:     make(map[string]time.Time),
	}
}

// Authenticate validates the signature headers of r over body and returns the signer.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (domain.Address, error) {
	var signer domain.Address
	signerHeader := strings.TrimSpace(r.Header.Get(HeaderSigner))
	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sigHeader := strings.TrimSpace(r.Header.Get(HeaderSignature))
	switch {
	case signerHeader == "":
		return signer, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSigner)
	case timestamp == "":
		return signer, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderTimestamp)
	case sigHeader == "":
		return signer, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSignature)
	}

	signer, err := domain.ParseAddress(signerHeader)
	if err != nil {
		return signer, fmt.Errorf("%w: %v", ErrInvalidSigner, err)
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return signer, fmt.Errorf("%w: %v", ErrStaleTimestamp, err)
	}
	now := a.nowFn()
	skew := now.Sub(time.Unix(secs, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.skew {
		return signer, fmt.Errorf("%w of %s", ErrStaleTimestamp, a.skew)
	}
	sig, err := base58.Decode(sigHeader)
	if err != nil {
		return signer, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !a.verifier.VerifyAuthority(signer, SigningPayload(r.Method, r.URL.Path, timestamp, body), sig) {
		return signer, ErrInvalidSignature
	}
	if a.replayed(sigHeader, now) {
		return signer, ErrReplayed
	}
	return signer, nil
}

// replayed records sig and reports whether it was already used within the
// skew window. Entries older than twice the skew can no longer pass the
// timestamp check and are dropped.
func (a *Authenticator) replayed(sig string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := now.Add(-2 * a.skew)
	for k, at := range a.seen {
		if at.Before(cutoff) {
			delete(a.seen, k)
		}
	}
	if _, ok := a.seen[sig]; ok {
		return true
	}
	a.seen[sig] = now
	return false
}

type signerKey struct{}

// WithSigner returns a context carrying the authenticated signer.
func WithSigner(ctx context.Context, signer domain.Address) context.Context {
	return context.WithValue(ctx, signerKey{}, signer)
}

// SignerFrom returns the authenticated signer stored by Middleware.
func SignerFrom(ctx context.Context) (domain.Address, bool) {
	signer, ok := ctx.Value(signerKey{}).(domain.Address)
	return signer, ok
}

// Middleware authenticates every request it wraps. The body is buffered and
// restored so handlers can decode it.
func (a *Authenticator) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyForSignature+1))
			if err != nil {
				onError(w, r, fmt.Errorf("read body: %w", err))
				return
			}
			if int64(len(body)) > MaxBodyForSignature {
				onError(w, r, ErrBodyTooLarge)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := a.Authenticate(r, body)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSigner(r.Context(), signer)))
		})
	}
}
