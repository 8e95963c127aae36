package htmltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSeparatesTextNodes(t *testing.T) {
	markup := `<html><head><title>Your order</title><style>p{color:red}</style></head>
<body><p>Order <b>#123456789</b></p><div>Delivers to:   Jane Doe,
  Springfield, 62704</div><script>var x = "1Z999AA10123456784";</script></body></html>`

	got := Convert(markup)
	assert.Equal(t, "Order\n#123456789\nDelivers to: Jane Doe, Springfield, 62704", got)
	assert.NotContains(t, got, "1Z999AA10123456784")
	assert.NotContains(t, got, "color")
}

func TestConvertDecodesEntities(t *testing.T) {
	assert.Equal(t, "you haven't been charged & that's it", Convert("<p>you haven&#39;t been charged &amp; that&#39;s it</p>"))
}

func TestConvertPassesPlainText(t *testing.T) {
	assert.Equal(t, "plain 5 > 3 body", Convert("plain 5 > 3 body"))
	assert.Equal(t, "", Convert(""))
}
