package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassamadnan/ordermail/retailer"
)

func newExtractor() *Extractor {
	return New(retailer.Builtin("target"))
}

func TestExtractShippedNotice(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender:  "Target <orders@oe.target.com>",
		Subject: "Your order #123456789012345 has shipped",
		Text: "Good news!\nOrder #123456789012345 is on its way.\n" +
			"Tracking number: 1Z999AA10123456784\n" +
			"Delivers to: Jane Doe, 123 Main St, Springfield, IL, 62704\n",
	})

	assert.Equal(t, "target", fact.Retailer)
	assert.Equal(t, "123456789012345", fact.OrderID)
	assert.False(t, fact.IsCancellation)
	assert.Empty(t, fact.CancellationReason)
	assert.Equal(t, []string{"1Z999AA10123456784"}, fact.TrackingNumbers)
	assert.Equal(t, "Jane Doe, 123 Main St, Springfield, IL, 62704", fact.ShipTo)
}

func TestExtractOrderIDNeverInTracking(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender: "target.com",
		Text:   "Order number: 555566667777 shipped with 999988887777666 and again 555566667777",
	})
	assert.Equal(t, "555566667777", fact.OrderID)
	assert.Equal(t, []string{"999988887777666"}, fact.TrackingNumbers)
	assert.NotContains(t, fact.TrackingNumbers, fact.OrderID)
}

func TestExtractCancellationUsesTrigger(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender:  "orders@target.com",
		Subject: "Sorry, we had to cancel your order",
		Text:    "Order #987654321 was cancelled.\nPurchase limit exceeded for this item.\n1Z999AA10123456784",
	})
	assert.Equal(t, "987654321", fact.OrderID)
	assert.True(t, fact.IsCancellation)
	assert.Equal(t, "Purchase limit exceeded", fact.CancellationReason)
	assert.Empty(t, fact.TrackingNumbers)
}

func TestExtractCancellationReasonCascade(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "what went wrong",
			text: "Order #11223344 cancelled.\nWhat went wrong?\nThe address couldn't be verified**See details",
			want: "The address couldn't be verified",
		},
		{
			name: "reason",
			text: "We cancelled order #11223344. Reason: the item is no longer available. Thanks",
			want: "the item is no longer available",
		},
		{
			name: "because",
			text: "Order #11223344 was cancelled because the card was declined. Sorry",
			want: "the card was declined",
		},
		{
			name: "placeholder",
			text: "Order #11223344 canceled.",
			want: UnspecifiedReason,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact := newExtractor().Extract(Message{Sender: "target.com", Subject: "Order cancelled", Text: tt.text})
			require.True(t, fact.IsCancellation)
			assert.Equal(t, tt.want, fact.CancellationReason)
		})
	}
}

func TestExtractReasonIsCapped(t *testing.T) {
	long := strings.Repeat("x", 300)
	fact := newExtractor().Extract(Message{
		Sender:  "target.com",
		Subject: "Order cancelled",
		Text:    "Order #11223344\nUnfortunately: " + long,
	})
	assert.Len(t, fact.CancellationReason, 200)
}

func TestExtractGenericFallbackOnlyForDefault(t *testing.T) {
	ex := newExtractor()

	fact := ex.Extract(Message{Sender: "shop@example.com", Text: "Confirmation 12345678901 for you"})
	assert.Equal(t, "target", fact.Retailer)
	assert.Equal(t, "12345678901", fact.OrderID)

	fact = ex.Extract(Message{Sender: "help@walmart.com", Text: "Confirmation 12345678901 for you"})
	assert.Equal(t, "walmart", fact.Retailer)
	assert.Empty(t, fact.OrderID)
	assert.False(t, fact.HasOrder())
}

func TestExtractRetailerTrackingPatterns(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender:  "shipment-tracking@amazon.com",
		Subject: "Shipped: your package",
		Text:    "Order 111-2222222-3333333 has shipped. Tracking ID TBA123456789012.",
	})
	assert.Equal(t, "amazon", fact.Retailer)
	assert.Equal(t, "111-2222222-3333333", fact.OrderID)
	assert.Equal(t, []string{"TBA123456789012"}, fact.TrackingNumbers)
}

func TestExtractOrderFromSubject(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender:  "target.com",
		Subject: "Thanks for your order #20202020",
		Text:    "We got it.",
	})
	assert.Equal(t, "20202020", fact.OrderID)
	assert.Nil(t, fact.TrackingNumbers)
	assert.Empty(t, fact.ShipTo)
}

func TestExtractBodyBoilerplateIsNotCancellation(t *testing.T) {
	for _, sender := range []string{"Target <orders@oe.target.com>", "help@walmart.com", "BestBuy@emailinfo.bestbuy.com"} {
		fact := newExtractor().Extract(Message{
			Sender:  sender,
			Subject: "Your order #123456789012345 has shipped",
			Text: "Order #123456789012345 is on its way.\n" +
				"Tracking number: 1Z999AA10123456784\n" +
				"Items that are canceled will not be charged.\n",
		})
		assert.False(t, fact.IsCancellation, sender)
		assert.Empty(t, fact.CancellationReason, sender)
		assert.Contains(t, fact.TrackingNumbers, "1Z999AA10123456784", sender)
	}
}

func TestExtractBroadCancelWordInSubject(t *testing.T) {
	fact := newExtractor().Extract(Message{
		Sender:  "Target <orders@oe.target.com>",
		Subject: "Order #123456789012345 canceled",
		Text:    "Sorry about that.\n",
	})
	assert.True(t, fact.IsCancellation)
	assert.Equal(t, UnspecifiedReason, fact.CancellationReason)
	assert.Nil(t, fact.TrackingNumbers)
}
