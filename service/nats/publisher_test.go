package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWalletEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := FromWalletEvent(wallet.Event{
		Kind:         wallet.OperationSwap,
		Status:       wallet.StatusFailed,
		Source:       "src",
		InputMint:    "in",
		OutputMint:   "out",
		Amount:       "2",
		BaseAmount:   2_000_000,
		ErrorKind:    wallet.KindQuoteUnavailable,
		ErrorMessage: "quote_unavailable: no route",
		OccurredAt:   at,
	})

	assert.Equal(t, StageCompleted, ev.Stage)
	assert.Equal(t, "ops.swap.failed", ev.Subject())
	assert.Equal(t, "quote_unavailable", ev.ErrorKind)
	assert.Equal(t, uint64(2_000_000), ev.BaseAmount)
	assert.Equal(t, at, ev.OccurredAt)
	assert.False(t, ev.PublishedAt.IsZero())
}

func TestWalletNotifier(t *testing.T) {
	pub := NewMockPublisher()
	n := WalletNotifier{Publisher: pub}

	require.NoError(t, n.Notify(context.Background(), wallet.Event{
		Kind:      wallet.OperationTransfer,
		Status:    wallet.StatusConfirmed,
		Signature: "sig",
	}))
	events := pub.GetPublishedEventsForSubject("ops.transfer.confirmed")
	require.Len(t, events, 1)
	assert.Equal(t, "sig", events[0].Signature)

	pub.SetPublishError(errors.New("no responders"))
	assert.Error(t, n.Notify(context.Background(), wallet.Event{Kind: wallet.OperationTransfer, Status: wallet.StatusFailed}))
	assert.Len(t, pub.GetPublishedEvents(), 1)
}
