package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gossipchain/core"
	"gossipchain/crypto"
	"gossipchain/storage"
)

const testToken = "test-token"

func testAddr(last byte) string {
	var raw [20]byte
	raw[19] = last
	return crypto.MustNewAddress(crypto.GossipPrefix, raw[:]).String()
}

func newTestServer(t *testing.T, allocs map[string]string) *httptest.Server {
	t.Helper()
	node := core.NewNode(storage.NewMemDB())
	if len(allocs) > 0 {
		require.NoError(t, node.ApplyGenesis(&core.Genesis{Alloc: allocs}))
	}
	srv := NewServer(node, nil, testToken)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return out, resp.StatusCode
}

func resultInto(t *testing.T, resp *RPCResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestRPCSettlementFlow(t *testing.T) {
	creator := testAddr(0x01)
	buyer := testAddr(0x02)
	sharer := testAddr(0x03)
	secondBuyer := testAddr(0x04)
	ts := newTestServer(t, map[string]string{
		buyer:       "15000000",
		secondBuyer: "12000000",
	})

	resp, status := call(t, ts, testToken, "gossip_create", createGossipParams{
		Creator: creator,
		Text:    "hello",
		Mention: testAddr(0x7F),
	})
	require.Equal(t, http.StatusOK, status)
	var created gossipResult
	resultInto(t, resp, &created)
	require.Equal(t, "15000000", created.Price)
	require.False(t, created.IsRevealed)
	require.Empty(t, created.Text)

	resp, status = call(t, ts, testToken, "gossip_reveal", revealGossipParams{
		Buyer:   buyer,
		ID:      created.ID,
		Payment: "15000000",
	})
	require.Equal(t, http.StatusOK, status)
	var revealed revealResult
	resultInto(t, resp, &revealed)
	require.True(t, revealed.Gossip.IsRevealed)
	require.Equal(t, "hello", revealed.Gossip.Text)
	require.Equal(t, creator, revealed.Vault.Owner)
	require.Equal(t, "15000000", revealed.Vault.Amount)

	resp, status = call(t, ts, testToken, "gossip_share", shareGossipParams{
		Sharer:     sharer,
		OriginalID: created.ID,
	})
	require.Equal(t, http.StatusOK, status)
	var shared sharedGossipResult
	resultInto(t, resp, &shared)
	require.Equal(t, "12000000", shared.SharePrice)

	resp, status = call(t, ts, testToken, "gossip_revealShared", revealSharedParams{
		Buyer:   secondBuyer,
		ShareID: shared.ID,
		Payment: "12000000",
	})
	require.Equal(t, http.StatusOK, status)
	var settled revealSharedResult
	resultInto(t, resp, &settled)
	require.Equal(t, "7200000", settled.CreatorVault.Amount)
	require.Equal(t, "4800000", settled.SharerVault.Amount)

	resp, status = call(t, ts, testToken, "gossip_withdraw", withdrawParams{
		Caller:      sharer,
		VaultID:     settled.SharerVault.ID,
		Destination: sharer,
	})
	require.Equal(t, http.StatusOK, status)
	var drained withdrawResult
	resultInto(t, resp, &drained)
	require.Equal(t, "4800000", drained.Amount)

	resp, status = call(t, ts, testToken, "gossip_balance", addressParams{Address: sharer})
	require.Equal(t, http.StatusOK, status)
	var balance balanceResult
	resultInto(t, resp, &balance)
	require.Equal(t, "4800000", balance.Balance)
}

func TestRPCRequiresBearerTokenForMutations(t *testing.T) {
	ts := newTestServer(t, nil)

	params := createGossipParams{Creator: testAddr(0x01), Text: "hi"}
	resp, status := call(t, ts, "", "gossip_create", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp, status = call(t, ts, "wrong-token", "gossip_create", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Read methods stay open.
	resp, status = call(t, ts, "", "gossip_balance", addressParams{Address: testAddr(0x01)})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestRPCErrorCodeMapping(t *testing.T) {
	creator := testAddr(0x01)
	buyer := testAddr(0x02)
	ts := newTestServer(t, map[string]string{buyer: "30000000"})

	resp, _ := call(t, ts, testToken, "gossip_create", createGossipParams{
		Creator: creator,
		Text:    "this text is far too long to price",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp, _ = call(t, ts, testToken, "gossip_create", createGossipParams{Creator: creator, Text: "hi"})
	var created gossipResult
	resultInto(t, resp, &created)

	// Wrong payment amount.
	resp, _ = call(t, ts, testToken, "gossip_reveal", revealGossipParams{
		Buyer: buyer, ID: created.ID, Payment: "1",
	})
	require.Equal(t, codePaymentRequired, resp.Error.Code)

	// Share before reveal.
	resp, _ = call(t, ts, testToken, "gossip_share", shareGossipParams{
		Sharer: buyer, OriginalID: created.ID,
	})
	require.Equal(t, codeNotRevealed, resp.Error.Code)

	resp, _ = call(t, ts, testToken, "gossip_reveal", revealGossipParams{
		Buyer: buyer, ID: created.ID, Payment: created.Price,
	})
	require.Nil(t, resp.Error)

	// Second reveal is rejected.
	resp, _ = call(t, ts, testToken, "gossip_reveal", revealGossipParams{
		Buyer: buyer, ID: created.ID, Payment: created.Price,
	})
	require.Equal(t, codeAlreadyRevealed, resp.Error.Code)

	// Unknown ID.
	resp, _ = call(t, ts, testToken, "gossip_get", idParams{ID: fmt.Sprintf("0x%064d", 0)})
	require.Equal(t, codeNotFound, resp.Error.Code)

	// Malformed ID.
	resp, _ = call(t, ts, testToken, "gossip_get", idParams{ID: "not-hex"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRPCRejectsMalformedEnvelopes(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	out := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	require.Equal(t, codeParseError, out.Error.Code)

	rpcResp, status := call(t, ts, testToken, "gossip_unknownMethod", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, rpcResp.Error.Code)
}

func TestRPCHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRPCEventsEndpoint(t *testing.T) {
	creator := testAddr(0x01)
	buyer := testAddr(0x02)
	ts := newTestServer(t, map[string]string{buyer: big.NewInt(10_000_000).String()})

	resp, _ := call(t, ts, testToken, "gossip_create", createGossipParams{Creator: creator, Text: "hi"})
	var created gossipResult
	resultInto(t, resp, &created)
	resp, _ = call(t, ts, testToken, "gossip_reveal", revealGossipParams{
		Buyer: buyer, ID: created.ID, Payment: created.Price,
	})
	require.Nil(t, resp.Error)

	resp, status := call(t, ts, "", "gossip_events", nil)
	require.Equal(t, http.StatusOK, status)
	var evts []struct {
		Type string `json:"type"`
	}
	resultInto(t, resp, &evts)
	require.Len(t, evts, 2)
	require.Equal(t, "gossip.created", evts[0].Type)
	require.Equal(t, "gossip.revealed", evts[1].Type)
}
