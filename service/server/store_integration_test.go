package server

import (
	"net/http"
	"testing"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ OperationStore = (*db.Store)(nil)
	_ Transferer     = (*wallet.TransferOrchestrator)(nil)
	_ Swapper        = (*wallet.SwapOrchestrator)(nil)
)

func TestTransfer_PersistsToPostgres(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	store.Cleanup(t)

	ts := newTestServer(t)
	ts.handler = New(":0", Deps{
		Store:     store.Store,
		Transfers: ts.orch,
		Swaps:     ts.orch,
		Finality:  ts.tracker,
		Logger:    discardLogger(),
	}).Handler()

	body := `{"private_key":"` + ts.key + `","destination":"` + testDestination + `","amount":"1.5"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created operationResponse
	decodeBody(t, rec, &created)
	assert.Equal(t, db.StatusConfirmed, created.Status)
	assert.Equal(t, ts.keyOwner, created.Source)

	rec = ts.do(t, http.MethodGet, "/api/v1/operations?address="+ts.keyOwner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Operations []operationResponse `json:"operations"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Operations, 1)
	assert.Equal(t, created.ID, list.Operations[0].ID)
	assert.Equal(t, testSignature, list.Operations[0].Signature)
}
