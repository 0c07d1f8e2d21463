package wallet

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/nutvault/walletcore/cashu"
)

// RequestKind classifies a pasted/scanned string per the decoder's
// first-match table.
type RequestKind int

const (
	KindUnknown RequestKind = iota
	KindBolt11
	KindLNURL
	KindCashuToken
	KindPubkey
	KindMintURL
	KindPaymentRequest
)

// DecodedRequest is the normalized result of classifying and, for
// payable kinds, resolving a user-supplied string.
type DecodedRequest struct {
	Kind RequestKind

	Bolt11      string
	AmountSat   uint64
	Description string
	PaymentHash string
	ExpireUnix  int64

	Token          string
	Pubkey         string
	MintURL        string
	PaymentRequest string

	LNURL *LNURLPayResponse

	// Session carries the melt quotes fetched for a BOLT-11 target: per
	// §4.8 the decoder runs melt_quote and multi_path_melt_quotes in
	// sequence right after decoding, rather than leaving callers to
	// request them separately.
	Session *PayInvoiceSession
}

// LNURLPayResponse is an LNURL pay endpoint's first-step metadata
// response (LUD-06).
type LNURLPayResponse struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	MinSendable    uint64 `json:"minSendable"`
	MaxSendable    uint64 `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int64  `json:"commentAllowed,omitempty"`
}

type lnurlCallbackResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

var p2pkPubkeyPattern = regexp.MustCompile(`^(02|03)[0-9a-fA-F]{64}$`)
var lnAddressPattern = regexp.MustCompile(`^[\w.+\-~_]+@[\w.+\-~_]+$`)

var lnurlHTTPClient = &http.Client{Timeout: 15 * time.Second}

// DecodeRequest classifies input per the decoder's table and, for
// BOLT-11 and LNURL targets, resolves it into a ready-to-quote invoice.
func (w *Wallet) DecodeRequest(input string) (*DecodedRequest, error) {
	input = strings.TrimSpace(input)

	switch {
	case strings.HasPrefix(strings.ToLower(input), "lnbc"):
		return w.decodeBolt11AndQuote(input)

	case strings.HasPrefix(strings.ToLower(input), "lightning:"):
		return w.decodeBolt11AndQuote(input[len("lightning:"):])

	case strings.HasPrefix(strings.ToLower(input), "bitcoin:"):
		invoice, ok := extractQueryParam(input, "lightning")
		if !ok {
			return nil, ErrDecodeFailed
		}
		return w.decodeBolt11AndQuote(invoice)

	case strings.HasPrefix(strings.ToLower(input), "lnurl:"):
		return w.resolveLNURLPay(input[len("lnurl:"):])

	case strings.Contains(strings.ToLower(input), "lightning=lnurl1"):
		idx := strings.Index(strings.ToLower(input), "lightning=lnurl1")
		rest := input[idx+len("lightning="):]
		if amp := strings.IndexByte(rest, '&'); amp != -1 {
			rest = rest[:amp]
		}
		return w.resolveLNURLPay(rest)

	case strings.HasPrefix(strings.ToLower(input), "lnurl1") || lnAddressPattern.MatchString(input):
		return w.resolveLNURLPay(input)

	case strings.HasPrefix(input, "cashuA") || strings.HasPrefix(input, "cashuB"):
		return &DecodedRequest{Kind: KindCashuToken, Token: input}, nil

	case strings.Contains(input, "token=cashu"):
		idx := strings.Index(input, "token=cashu")
		return &DecodedRequest{Kind: KindCashuToken, Token: input[idx+len("token="):]}, nil

	case p2pkPubkeyPattern.MatchString(input):
		return &DecodedRequest{Kind: KindPubkey, Pubkey: input}, nil

	case strings.HasPrefix(strings.ToLower(input), "http"):
		return &DecodedRequest{Kind: KindMintURL, MintURL: input}, nil

	case strings.HasPrefix(input, "creqA"):
		return &DecodedRequest{Kind: KindPaymentRequest, PaymentRequest: input}, nil
	}

	return nil, ErrDecodeFailed
}

func decodeBolt11(invoice string) (*DecodedRequest, error) {
	decoded, err := decodepay.Decodepay(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	return &DecodedRequest{
		Kind:        KindBolt11,
		Bolt11:      invoice,
		AmountSat:   uint64(decoded.MSatoshi) / 1000,
		Description: decoded.Description,
		PaymentHash: decoded.PaymentHash,
		ExpireUnix:  int64(decoded.CreatedAt + decoded.Expiry),
	}, nil
}

// decodeBolt11AndQuote decodes a bolt11 invoice and then, per §4.8,
// requests a melt_quote and multi_path_melt_quotes for it in sequence,
// attaching both (and the blocking latch that serializes further quote
// requests for this same pay attempt) to the returned request's
// Session. A single-mint quote failure fails the decode outright, since
// callers need at least one quote to pay; MPP is best-effort and a
// failure there is only recorded on the session for the caller to
// inspect, not propagated.
func (w *Wallet) decodeBolt11AndQuote(invoice string) (*DecodedRequest, error) {
	decoded, err := decodeBolt11(invoice)
	if err != nil {
		return nil, err
	}

	session := &PayInvoiceSession{
		Bolt11:      decoded.Bolt11,
		AmountSat:   decoded.AmountSat,
		Description: decoded.Description,
		ExpireUnix:  decoded.ExpireUnix,
	}
	decoded.Session = session

	if _, err := w.MeltQuote(session, decoded.Bolt11); err != nil {
		return nil, err
	}
	w.MultiPathMeltQuotes(session, decoded.Bolt11, decoded.AmountSat)

	return decoded, nil
}

// resolveLNURLPay resolves an lnurl1... bech32 string or a user@host
// LN address into its pay endpoint's LUD-06 metadata.
func (w *Wallet) resolveLNURLPay(target string) (*DecodedRequest, error) {
	endpoint, err := lnurlEndpointURL(target)
	if err != nil {
		return nil, err
	}

	body, err := httpGetJSON(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLNURLError, err)
	}

	var meta LNURLPayResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: invalid lnurl response", ErrLNURLError)
	}
	if meta.Tag != "payRequest" {
		return nil, fmt.Errorf("%w: unsupported lnurl tag '%v'", ErrLNURLError, meta.Tag)
	}

	result := &DecodedRequest{Kind: KindLNURL, LNURL: &meta}
	if meta.MinSendable == meta.MaxSendable {
		result.AmountSat = meta.MaxSendable / 1000
	}
	return result, nil
}

// lnurlEndpointURL turns a user@host LN address or an lnurl1... bech32
// string into the HTTPS endpoint it names.
func lnurlEndpointURL(target string) (string, error) {
	if lnAddressPattern.MatchString(target) && !strings.HasPrefix(strings.ToLower(target), "lnurl1") {
		parts := strings.SplitN(target, "@", 2)
		return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", parts[1], parts[0]), nil
	}

	_, data, err := bech32.DecodeNoLimit(target)
	if err != nil {
		return "", fmt.Errorf("%w: invalid lnurl: %v", ErrDecodeFailed, err)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: invalid lnurl: %v", ErrDecodeFailed, err)
	}
	return string(converted), nil
}

// ResolveLNURLAmount converts a USD-denominated wallet unit to sats via
// Coinbase's spot rate, or passes a sat amount through unchanged, then
// completes the LNURL pay flow's callback step and decodes the invoice
// it returns.
func (w *Wallet) ResolveLNURLAmount(meta *LNURLPayResponse, amountSat uint64) (*DecodedRequest, error) {
	if w.unit == cashu.Usd {
		converted, err := usdSatsFromCoinbase(amountSat)
		if err != nil {
			return nil, err
		}
		amountSat = converted
	}

	callbackURL := meta.Callback
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	endpoint := fmt.Sprintf("%s%samount=%d", callbackURL, sep, amountSat*1000)

	body, err := httpGetJSON(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLNURLError, err)
	}

	var resp lnurlCallbackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid lnurl callback response", ErrLNURLError)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("%w: %v", ErrLNURLError, resp.Reason)
	}

	return w.decodeBolt11AndQuote(resp.PR)
}

// usdSatsFromCoinbase converts a whole-dollar USD amount to sats using
// the current BTC-USD spot rate: amountUsd * 1e8 / price, truncated.
func usdSatsFromCoinbase(amountUsd uint64) (uint64, error) {
	body, err := httpGetJSON("https://api.coinbase.com/v2/exchange-rates?currency=BTC")
	if err != nil {
		return 0, fmt.Errorf("error fetching BTC-USD rate: %v", err)
	}

	var rates struct {
		Data struct {
			Rates struct {
				USD string `json:"USD"`
			} `json:"rates"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &rates); err != nil {
		return 0, fmt.Errorf("error reading BTC-USD rate: %v", err)
	}

	var price float64
	if _, err := fmt.Sscanf(rates.Data.Rates.USD, "%f", &price); err != nil {
		return 0, fmt.Errorf("error parsing BTC-USD rate: %v", err)
	}
	if price == 0 {
		return 0, fmt.Errorf("received zero BTC-USD rate")
	}

	return uint64(float64(amountUsd) * (1e8 / price)), nil
}

func httpGetJSON(endpoint string) ([]byte, error) {
	resp, err := lnurlHTTPClient.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func extractQueryParam(uri, key string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	value := parsed.Query().Get(key)
	return value, value != ""
}
