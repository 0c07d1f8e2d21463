package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestClassification(t *testing.T) {
	w := &Wallet{}

	decoded, err := w.DecodeRequest("cashuBo2FteGh0dHA6Ly9sb2NhbGhvc3Q")
	require.NoError(t, err)
	require.Equal(t, KindCashuToken, decoded.Kind)
	require.Equal(t, "cashuBo2FteGh0dHA6Ly9sb2NhbGhvc3Q", decoded.Token)

	decoded, err = w.DecodeRequest("web+cashu://token=cashuBabc123")
	require.NoError(t, err)
	require.Equal(t, KindCashuToken, decoded.Kind)
	require.Equal(t, "cashuBabc123", decoded.Token)

	pubkeyHex := "02" + strings.Repeat("ab", 32)
	decoded, err = w.DecodeRequest(pubkeyHex)
	require.NoError(t, err)
	require.Equal(t, KindPubkey, decoded.Kind)

	decoded, err = w.DecodeRequest("https://mint.example.com")
	require.NoError(t, err)
	require.Equal(t, KindMintURL, decoded.Kind)
	require.Equal(t, "https://mint.example.com", decoded.MintURL)

	decoded, err = w.DecodeRequest("creqAsomepaymentrequestpayload")
	require.NoError(t, err)
	require.Equal(t, KindPaymentRequest, decoded.Kind)

	_, err = w.DecodeRequest("not a recognizable string !!")
	require.ErrorIs(t, err, ErrDecodeFailed)
}

func TestDecodeRequestBolt11Prefixes(t *testing.T) {
	w := &Wallet{}

	// the test double isn't a valid bolt11 string, so decoding fails, but
	// it still proves each prefix routes into decodeBolt11 rather than
	// falling through to KindUnknown.
	_, err := w.DecodeRequest("lnbcnotarealinvoice")
	require.ErrorIs(t, err, ErrDecodeFailed)

	_, err = w.DecodeRequest("lightning:lnbcnotarealinvoice")
	require.ErrorIs(t, err, ErrDecodeFailed)

	_, err = w.DecodeRequest("bitcoin:bc1qexample?lightning=lnbcnotarealinvoice")
	require.ErrorIs(t, err, ErrDecodeFailed)
}

func TestDecodeRequestBitcoinURIMissingLightningParam(t *testing.T) {
	w := &Wallet{}

	_, err := w.DecodeRequest("bitcoin:bc1qexample?amount=0.001")
	require.ErrorIs(t, err, ErrDecodeFailed)
}

func TestLnurlEndpointURLLightningAddress(t *testing.T) {
	endpoint, err := lnurlEndpointURL("satoshi@example.com")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/.well-known/lnurlp/satoshi", endpoint)
}

func TestLnurlEndpointURLBech32(t *testing.T) {
	raw := "https://mint.example.com/lnurlp/satoshi"
	converted, err := bech32.ConvertBits([]byte(raw), 8, 5, true)
	require.NoError(t, err)
	encoded, err := bech32.Encode("lnurl", converted)
	require.NoError(t, err)

	endpoint, err := lnurlEndpointURL(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, endpoint)
}

func TestLnurlEndpointURLInvalid(t *testing.T) {
	_, err := lnurlEndpointURL("lnurl1notvalidbech32!!!")
	require.ErrorIs(t, err, ErrDecodeFailed)
}

// encodeLNURL bech32-encodes a URL the way a wallet would display it as an
// "lnurl1..." string, so resolveLNURLPay can be driven against a local
// httptest server instead of a real LNURL host.
func encodeLNURL(t *testing.T, rawURL string) string {
	t.Helper()
	converted, err := bech32.ConvertBits([]byte(rawURL), 8, 5, true)
	require.NoError(t, err)
	encoded, err := bech32.Encode("lnurl", converted)
	require.NoError(t, err)
	return encoded
}

func TestDecodeRequestLNURLPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(LNURLPayResponse{
			Tag:         "payRequest",
			Callback:    "https://mint.example.com/lnurlp/cb",
			MinSendable: 1000,
			MaxSendable: 1000,
			Metadata:    `[["text/plain","pay me"]]`,
		})
	}))
	defer server.Close()

	w := &Wallet{}
	decoded, err := w.DecodeRequest(encodeLNURL(t, server.URL))
	require.NoError(t, err)
	require.Equal(t, KindLNURL, decoded.Kind)
	require.NotNil(t, decoded.LNURL)
	require.Equal(t, "payRequest", decoded.LNURL.Tag)
	require.EqualValues(t, 1, decoded.AmountSat)
}

func TestDecodeRequestLNURLPayWrongTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(LNURLPayResponse{Tag: "withdrawRequest"})
	}))
	defer server.Close()

	w := &Wallet{}
	_, err := w.DecodeRequest(encodeLNURL(t, server.URL))
	require.ErrorIs(t, err, ErrLNURLError)
}

func TestDecodeRequestLNURLPayUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close() // close immediately: connection refused

	w := &Wallet{}
	_, err := w.DecodeRequest(encodeLNURL(t, server.URL))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLNURLError))
}

func TestResolveLNURLAmountSuccess(t *testing.T) {
	var gotAmountParam string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAmountParam = r.URL.Query().Get("amount")
		json.NewEncoder(rw).Encode(struct {
			PR     string `json:"pr"`
			Status string `json:"status"`
		}{PR: "lnbcnotarealinvoice"})
	}))
	defer server.Close()

	w := &Wallet{}
	meta := &LNURLPayResponse{Callback: server.URL}

	// the callback step always completes (and returns a bolt11 string),
	// even though that string won't actually decode here.
	_, err := w.ResolveLNURLAmount(meta, 21)
	require.ErrorIs(t, err, ErrDecodeFailed)
	require.Equal(t, "21000", gotAmountParam)
}

func TestResolveLNURLAmountCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}{Status: "ERROR", Reason: "amount out of range"})
	}))
	defer server.Close()

	w := &Wallet{}
	meta := &LNURLPayResponse{Callback: server.URL}

	_, err := w.ResolveLNURLAmount(meta, 21)
	require.ErrorIs(t, err, ErrLNURLError)
}
