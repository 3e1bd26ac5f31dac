package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vocwallet/core/types"
	"vocwallet/crypto"
)

type rpcCall struct {
	Method string
	Params []json.RawMessage
	Header http.Header
}

type stubGateway struct {
	mu       sync.Mutex
	calls    []rpcCall
	accounts map[common.Address]types.AccountInfo
}

func (s *stubGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int               `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.calls = append(s.calls, rpcCall{Method: req.Method, Params: req.Params, Header: r.Header.Clone()})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch req.Method {
	case methodGetAccount:
		var addr string
		_ = json.Unmarshal(req.Params[0], &addr)
		info, ok := s.accounts[common.HexToAddress(addr)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":    req.ID,
				"error": map[string]interface{}{"code": CodeAccountNotFound, "message": "account not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": req.ID, "result": info})
	case methodSubmitTx:
		var tx types.Transaction
		if err := json.Unmarshal(req.Params[0], &tx); err != nil {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":    req.ID,
				"error": map[string]interface{}{"code": -32602, "message": "invalid tx"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": req.ID, "result": "0xfeed"})
	default:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    req.ID,
			"error": map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	}
}

func TestAccountInfo(t *testing.T) {
	addr := common.HexToAddress("0xf7FB77ee1F309D9468fB6DCB71aDD0f934a33c6B")
	stub := &stubGateway{accounts: map[common.Address]types.AccountInfo{
		addr: {InfoURI: "ipfs://randomfile", Balance: 100, Nonce: 2},
	}}
	server := httptest.NewServer(stub)
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	info, err := c.AccountInfo(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, "ipfs://randomfile", info.InfoURI)
	require.Equal(t, uint64(100), info.Balance)
	require.Equal(t, addr, info.Address)

	_, err = c.AccountInfo(context.Background(), common.HexToAddress("0x01"))
	require.ErrorIs(t, err, types.ErrAccountNotFound)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, CodeAccountNotFound, rpcErr.Code)
}

func TestSubmitTransactionAttachesAuth(t *testing.T) {
	stub := &stubGateway{}
	server := httptest.NewServer(stub)
	defer server.Close()

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := &types.Transaction{Type: types.TxTypeSetAccountInfo, InfoURI: "ipfs://a"}
	require.NoError(t, tx.Sign(key))

	c, err := New(server.URL, WithAuthToken(" secret "), WithRateLimit(100, 1))
	require.NoError(t, err)

	hash, err := c.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, "0xfeed", hash)

	require.Len(t, stub.calls, 1)
	require.Equal(t, methodSubmitTx, stub.calls[0].Method)
	require.Equal(t, "Bearer secret", stub.calls[0].Header.Get("Authorization"))

	var sent types.Transaction
	require.NoError(t, json.Unmarshal(stub.calls[0].Params[0], &sent))
	from, err := sent.From()
	require.NoError(t, err)
	require.Equal(t, key.Address(), from)
}

func TestSubmitRejectsUnsigned(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.SubmitTransaction(context.Background(), &types.Transaction{Type: types.TxTypeMintTokens})
	require.ErrorIs(t, err, types.ErrUnsigned)
}

func TestNonJSONErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)
	_, err = c.AccountInfo(context.Background(), common.HexToAddress("0x01"))
	require.ErrorContains(t, err, "status 502")
	require.NotErrorIs(t, err, types.ErrAccountNotFound)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}
